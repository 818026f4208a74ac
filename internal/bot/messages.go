package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgWelcome       = "👋 Welcome, %s!\n\nUse /genstring to generate your Telegram string session."
	MsgUsagePrompt   = "Use /genstring to start generating a string session, or /cancel to abort one in progress."
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
)

// =============================================================================
// String session generation flow
// =============================================================================

const (
	MsgGenStart = `
		Let's generate your string session!

		Please send your API_ID:`
	MsgInvalidAppID   = "Invalid API_ID. Please enter a valid integer."
	MsgSendAppHash    = "Great! Now send your API_HASH:"
	MsgSendPhone      = "Now send your phone number (with country code):"
	MsgCodeSent       = "A login code has been sent to your Telegram account. Please send the code:"
	MsgSendPassword   = "Your account has two-step verification enabled. Please send your password:"
	MsgGenSuccess     = "✅ String session generated successfully! Check your Saved Messages."
	MsgGenFallback    = "✅ String session generated, but it could not be delivered to your Saved Messages.\n\nHere it is — keep it secret:\n\n`%s`"
	MsgGenFailed      = "Error: %s\n\nStart again with /genstring."
	MsgGenCancelled   = "Process cancelled."
	MsgNothingToDo    = "Nothing to cancel."
	MsgGenTimeout     = "Session generation timed out due to inactivity. Start again with /genstring."
	MsgGenInProgress  = "Session generation is in progress. Send the requested value, or /cancel to abort."
	MsgGenRestarted   = "Previous attempt discarded."
	MsgSavedMsgHeader = "Your Telegram string session (keep it secret!):\n\n%s"
)

// =============================================================================
// Stored session management
// =============================================================================

const (
	MsgSessionRevoked  = "🗑 Stored string session deleted."
	MsgNoStoredSession = "You have no stored string session."
)
