// Command gateway-check drives a full authorization flow against an MTProto
// gateway from the terminal. Useful for verifying gateway config before
// pointing the bot at it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/aleksis/telegram-stringgen-bot/internal/mtproto"
)

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func main() {
	_ = godotenv.Load()

	gatewayURL := os.Getenv("MTPROTO_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = mtproto.DefaultGatewayURL
	}
	fmt.Printf("gateway: %s\n", gatewayURL)

	reader := bufio.NewReader(os.Stdin)

	appID, err := strconv.Atoi(prompt(reader, "api id"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid api id: %v\n", err)
		os.Exit(1)
	}
	appHash := prompt(reader, "api hash")
	phone := prompt(reader, "phone")

	client, err := mtproto.NewClient(appID, appHash, mtproto.ClientOpts{GatewayURL: gatewayURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	defer client.Close(ctx)

	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("connected")

	codeHash, err := client.SendCode(ctx, phone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send code: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("code sent, hash %s\n", codeHash)

	code := prompt(reader, "code")
	result, err := client.SignIn(ctx, phone, codeHash, code)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign in: %v\n", err)
		os.Exit(1)
	}

	if result.PasswordRequired {
		password := prompt(reader, "2fa password")
		if err := client.CheckPassword(ctx, password); err != nil {
			fmt.Fprintf(os.Stderr, "password: %v\n", err)
			os.Exit(1)
		}
	}

	session, err := client.ExportSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("string session:\n%s\n", session)
}
