// Command csgdemo exercises the 95598 client interactively: log in with one
// of the supported methods, persist the session to a file and dump the
// linked accounts with their balance and current-month usage.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/csgstat/csgstat/pkg/csg"
	"github.com/csgstat/csgstat/pkg/types"

	"github.com/levenlabs/go-lflag"
)

func main() {
	sessionFile := lflag.String("session-file", "session.json", "Path for persisting the login session")
	freshLogin := lflag.Bool("fresh-login", false, "Ignore the saved session and log in again")
	method := lflag.String("login-method", "password", "Login method: password, sms, password_sms, qr-app, qr-wechat, qr-alipay")
	username := lflag.String("username", os.Getenv("CSG_USERNAME"), "Phone number (defaults to CSG_USERNAME)")
	password := lflag.String("password", os.Getenv("CSG_PASSWORD"), "Account password (defaults to CSG_PASSWORD)")
	timeout := lflag.Duration("timeout", 30*time.Second, "Per-request timeout")
	lflag.Configure()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := csg.NewClient(*timeout)
	stdin := bufio.NewScanner(os.Stdin)

	if err := establishSession(ctx, client, stdin, *sessionFile, *freshLogin, *method, *username, *password); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}

	if err := client.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "initialize failed:", err)
		os.Exit(1)
	}

	if err := saveSession(client, *sessionFile); err != nil {
		fmt.Fprintln(os.Stderr, "failed to save session:", err)
		os.Exit(1)
	}
	fmt.Println("session saved to", *sessionFile)

	if err := run(ctx, client, stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// establishSession restores the saved session unless freshLogin is set, in
// which case it walks the chosen login method.
func establishSession(ctx context.Context, client *csg.Client, stdin *bufio.Scanner, sessionFile string, freshLogin bool, method, username, password string) error {
	if !freshLogin {
		raw, err := os.ReadFile(sessionFile)
		if err == nil {
			session, lerr := types.LoadSession(raw)
			if lerr != nil {
				return fmt.Errorf("saved session is unusable: %w", lerr)
			}
			client.Restore(session)
			ok, verr := client.VerifyLogin(ctx)
			if verr != nil {
				return verr
			}
			if ok {
				fmt.Println("restored session from", sessionFile)
				return nil
			}
			fmt.Println("saved session expired, logging in again")
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	switch method {
	case "password":
		if username == "" || password == "" {
			return errors.New("password login needs -username and -password")
		}
		return client.Authenticate(ctx, username, password, "")
	case "sms":
		if username == "" {
			return errors.New("sms login needs -username")
		}
		if err := client.SendLoginSMS(ctx, username); err != nil {
			return err
		}
		code, err := prompt(stdin, "verification code sent, enter it: ")
		if err != nil {
			return err
		}
		return client.AuthenticateWithSMSCode(ctx, username, code)
	case "password_sms":
		if username == "" || password == "" {
			return errors.New("password_sms login needs -username and -password")
		}
		if err := client.SendLoginSMS(ctx, username); err != nil {
			return err
		}
		code, err := prompt(stdin, "verification code sent, enter it: ")
		if err != nil {
			return err
		}
		strategy := csg.PasswordAndSMSStrategy{}
		return strategy.Login(ctx, client, types.Credentials{
			Username: username,
			Password: password,
			Code:     code,
		})
	case "qr-app", "qr-wechat", "qr-alipay":
		strategy := csg.QRStrategy{
			Channel: csg.QRChannel(strings.TrimPrefix(method, "qr-")),
			OnCode: func(codeURL string) {
				fmt.Println("open this link and scan to log in:")
				fmt.Println(codeURL)
			},
		}
		qrCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		return strategy.Login(qrCtx, client, types.Credentials{})
	default:
		return fmt.Errorf("unknown login method %q", method)
	}
}

func run(ctx context.Context, client *csg.Client, stdin *bufio.Scanner) error {
	who, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch user info: %w", err)
	}
	fmt.Println("user info:", who)

	accounts, err := client.GetAllLinkedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	fmt.Printf("%d linked electricity accounts:\n", len(accounts))
	for i, acct := range accounts {
		fmt.Printf("%d. %s, %s, %s\n", i+1, acct.AccountNumber, acct.Address, acct.UserName)
	}
	if len(accounts) == 0 {
		return nil
	}

	acct := accounts[0]
	fmt.Println("using the first account:", acct.AccountNumber)

	if _, err := prompt(stdin, "press enter to fetch balance and arrears"); err != nil {
		return err
	}
	balance, arrears, err := client.GetBalanceAndArrears(ctx, acct)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	fmt.Printf("account %s, balance: %.2f, arrears: %.2f\n", acct.AccountNumber, balance, arrears)

	if _, err := prompt(stdin, "press enter to fetch this month's daily usage"); err != nil {
		return err
	}
	now := time.Now()
	detail, err := client.GetMonthDailyCostDetail(ctx, acct, now.Year(), int(now.Month()))
	if err != nil {
		return fmt.Errorf("failed to fetch month detail: %w", err)
	}
	if detail.TotalCost != nil {
		fmt.Printf("month cost so far: %.2f\n", *detail.TotalCost)
	}
	if detail.TotalKWH != nil {
		fmt.Printf("month usage so far: %.2f kWh\n", *detail.TotalKWH)
	}
	if detail.Ladder.Stage != nil {
		fmt.Printf("current ladder stage: %d\n", *detail.Ladder.Stage)
	}
	for _, day := range detail.ByDay {
		if day.Cost != nil {
			fmt.Printf("  %s  %.2f kWh  %.2f\n", day.Date, day.KWH, *day.Cost)
		} else {
			fmt.Printf("  %s  %.2f kWh\n", day.Date, day.KWH)
		}
	}
	return nil
}

func prompt(stdin *bufio.Scanner, msg string) (string, error) {
	fmt.Print(msg)
	if !stdin.Scan() {
		if err := stdin.Err(); err != nil {
			return "", err
		}
		return "", errors.New("stdin closed")
	}
	return strings.TrimSpace(stdin.Text()), nil
}

func saveSession(client *csg.Client, path string) error {
	raw, err := types.DumpSession(client.Session())
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
