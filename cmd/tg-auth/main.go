package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/session/tdesktop"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/database"
	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/telegram"
)

const (
	methodAuto  = "auto"
	methodTData = "tdata"
	methodPhone = "phone"
	methodQR    = "qr"
)

// qrSessionDSN holds the session written by the QR flow until it is exported.
const qrSessionDSN = "file:tg-auth?mode=memory&cache=shared"

var (
	method    string
	tdataPath string
	channel   string
	noVerify  bool

	rootCmd = &cobra.Command{
		Use:   "tg-auth",
		Short: "Authorize a Telegram account and print its session string",
		Long: `Signs in with a Telegram Desktop session, a phone login code or a QR code
and prints the session string to put into TG_SESSION_STRING. The importer
then checks that the configured channel is readable with that session.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&method, "method", "m", methodAuto, "auth method: auto, tdata, phone or qr")
	rootCmd.Flags().StringVar(&tdataPath, "tdata", "", "Telegram Desktop tdata directory (default: platform location)")
	rootCmd.Flags().StringVar(&channel, "channel", "", "channel to verify access to (default TG_CHANNEL)")
	rootCmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the channel access check")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runAuth(ctx context.Context, in io.Reader, out io.Writer) error {
	switch method {
	case methodAuto, methodTData, methodPhone, methodQR:
	default:
		return fmt.Errorf("unknown method %q", method)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Get().Close() }()

	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "=== telegram auth tool ===")
	fmt.Fprintln(out, "this tool generates a session string for the listing importer")
	fmt.Fprintln(out)

	if err := promptCredentials(cfg, reader, out); err != nil {
		return err
	}

	var accounts []tdesktop.Account
	if method == methodAuto || method == methodTData {
		accounts = findAccounts(reader, out)
		switch {
		case method == methodTData && len(accounts) == 0:
			return errors.New("no telegram desktop session found")
		case method == methodAuto && len(accounts) > 0:
			method = chooseMethod(reader, out)
		case method == methodAuto:
			fmt.Fprintln(out, "no telegram desktop session found, using QR login")
			method = methodQR
		}
	}

	manager, err := authorize(ctx, cfg, accounts, reader, out)
	if err != nil {
		return err
	}
	defer manager.Stop()

	sessionString, err := manager.ExportSession()
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}

	fmt.Fprintln(out, "\n✓ authentication successful!")
	if self := manager.GetClient().Self; self != nil && self.Username != "" {
		fmt.Fprintf(out, "logged in as: @%s\n", self.Username)
	}
	fmt.Fprintln(out, "\nyour session string:")
	fmt.Fprintln(out, "---")
	fmt.Fprintln(out, sessionString)
	fmt.Fprintln(out, "---")
	fmt.Fprintln(out, "\nadd this to your .env file as TG_SESSION_STRING")
	fmt.Fprintln(out, "keep this secret! it provides full access to your telegram account")

	if noVerify {
		return nil
	}
	if channel == "" {
		channel = cfg.TGChannel
	}
	return verifyChannel(ctx, telegram.NewClient(manager), channel, out)
}

// authorize signs in with the selected method and returns a ready manager.
func authorize(ctx context.Context, cfg *config.Config, accounts []tdesktop.Account, reader *bufio.Reader, out io.Writer) (*telegram.Manager, error) {
	if method == methodQR {
		return authWithQR(ctx, cfg, out)
	}

	var (
		client *gotgproto.Client
		err    error
	)
	if method == methodTData {
		client, err = authWithTData(cfg, accounts, reader, out)
	} else {
		client, err = authWithPhone(cfg, reader, out)
	}
	if err != nil {
		return nil, err
	}

	sessionString, err := client.ExportStringSession()
	if err != nil {
		client.Stop()
		return nil, fmt.Errorf("export session: %w", err)
	}

	// hand the signed-in client to a manager so the importer's client wrapper can use it
	cfg.TGSessionStr = sessionString
	manager := telegram.NewManager(cfg, nil)
	manager.SetClientFactory(func(context.Context, *config.Config, *gorm.DB) (*gotgproto.Client, error) {
		return client, nil
	})
	if err := manager.Init(ctx); err != nil {
		client.Stop()
		return nil, err
	}
	return manager, nil
}

// promptCredentials fills the api credentials from the terminal when the
// environment does not provide them.
func promptCredentials(cfg *config.Config, reader *bufio.Reader, out io.Writer) error {
	if cfg.TGApiID == 0 {
		fmt.Fprint(out, "enter your api_id (from https://my.telegram.org): ")
		raw, _ := reader.ReadString('\n')
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid api_id: %w", err)
		}
		cfg.TGApiID = id
	}
	if cfg.TGApiHash == "" {
		fmt.Fprint(out, "enter your api_hash: ")
		raw, _ := reader.ReadString('\n')
		cfg.TGApiHash = strings.TrimSpace(raw)
	}
	return cfg.Validate()
}

// findAccounts reads Telegram Desktop accounts from --tdata, the platform
// default location or a path typed by the user.
func findAccounts(reader *bufio.Reader, out io.Writer) []tdesktop.Account {
	path := tdataPath
	if path == "" {
		path = telegramDesktopPath()
	}

	accounts, err := tdesktop.Read(path, nil)
	if err == nil && len(accounts) > 0 {
		fmt.Fprintf(out, "detected %d telegram desktop session(s) at: %s\n", len(accounts), path)
		return accounts
	}
	if tdataPath != "" {
		fmt.Fprintf(out, "no telegram desktop session at %s\n", path)
		return nil
	}

	fmt.Fprintf(out, "default path not found: %s\n", path)
	fmt.Fprint(out, "enter telegram desktop path (or press enter to skip): ")
	custom, _ := reader.ReadString('\n')
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return nil
	}
	if !strings.HasSuffix(custom, "tdata") {
		custom = filepath.Join(custom, "tdata")
	}

	accounts, err = tdesktop.Read(custom, nil)
	if err != nil || len(accounts) == 0 {
		return nil
	}
	fmt.Fprintf(out, "detected %d telegram desktop session(s) at: %s\n", len(accounts), custom)
	return accounts
}

func chooseMethod(reader *bufio.Reader, out io.Writer) string {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "choose authentication method:")
	fmt.Fprintln(out, "  1. use telegram desktop session (recommended)")
	fmt.Fprintln(out, "  2. authenticate with phone number (sms/code)")
	fmt.Fprintln(out, "  3. scan a QR code with the mobile app")
	fmt.Fprint(out, "\nenter choice [1]: ")

	choice, _ := reader.ReadString('\n')
	switch strings.TrimSpace(choice) {
	case "2":
		return methodPhone
	case "3":
		return methodQR
	default:
		return methodTData
	}
}

// telegramDesktopPath returns the path to the Telegram Desktop data directory
func telegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

// authWithTData authenticates using a Telegram Desktop session
func authWithTData(cfg *config.Config, accounts []tdesktop.Account, reader *bufio.Reader, out io.Writer) (*gotgproto.Client, error) {
	idx := 0
	if len(accounts) > 1 {
		fmt.Fprintf(out, "\nfound %d telegram accounts:\n", len(accounts))
		for i := range accounts {
			fmt.Fprintf(out, "  %d. Account #%d\n", i+1, i+1)
		}
		fmt.Fprint(out, "\nselect account number [1]: ")
		choice, _ := reader.ReadString('\n')
		if n, err := strconv.Atoi(strings.TrimSpace(choice)); err == nil && n >= 1 && n <= len(accounts) {
			idx = n - 1
		}
	}

	fmt.Fprintln(out, "\nauthenticating with telegram desktop session...")

	return gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(""), // empty = use session
		&gotgproto.ClientOpts{
			Session:          sessionMaker.TdataSession(accounts[idx]).Name("tdata_session"),
			InMemory:         true,
			DisableCopyright: true,
		},
	)
}

// authWithPhone authenticates using a phone number and login code
func authWithPhone(cfg *config.Config, reader *bufio.Reader, out io.Writer) (*gotgproto.Client, error) {
	fmt.Fprint(out, "enter your phone number (with country code, e.g. +79991234567): ")
	phone, _ := reader.ReadString('\n')
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, errors.New("phone number is required")
	}

	fmt.Fprintln(out, "\nauthenticating... (check telegram for code)")

	client, err := gotgproto.NewClient(
		cfg.TGApiID,
		cfg.TGApiHash,
		gotgproto.ClientTypePhone(phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open("tg_session")),
			DisableCopyright: true,
		},
	)
	if err == nil {
		fmt.Fprintln(out, "\nnote: tg_session.db was created for temporary storage.")
		fmt.Fprintln(out, "you can delete it after copying the session string.")
	}
	return client, err
}

// authWithQR renders login tokens as terminal QR codes until the user scans one.
func authWithQR(ctx context.Context, cfg *config.Config, out io.Writer) (*telegram.Manager, error) {
	db, err := database.OpenSQLite(qrSessionDSN)
	if err != nil {
		return nil, err
	}

	// the new session must come from the QR flow, not from the environment
	cfg.TGSessionStr = ""
	manager := telegram.NewManager(cfg, db)

	fmt.Fprintln(out, "\nopen Telegram > Settings > Devices > Link Desktop Device and scan:")
	err = manager.StartQR(ctx, func(url string) {
		fmt.Fprintln(out)
		qrterminal.GenerateHalfBlock(url, qrterminal.L, out)
		fmt.Fprintln(out, "waiting for scan, the code refreshes automatically...")
	})
	if err != nil {
		return nil, fmt.Errorf("qr login: %w", err)
	}
	if manager.GetStatus() != telegram.StatusReady {
		return nil, telegram.ErrNotAuthorized
	}
	return manager, nil
}

// verifyChannel checks that the session can read the channel.
func verifyChannel(ctx context.Context, client *telegram.Client, name string, out io.Writer) error {
	if name == "" {
		fmt.Fprintln(out, "\nTG_CHANNEL is not set, skipping channel check")
		return nil
	}

	ch, err := client.ResolveChannel(ctx, name)
	if err != nil {
		if errors.Is(err, telegram.ErrChannelNotFound) || errors.Is(err, telegram.ErrNotAChannel) {
			return fmt.Errorf("channel @%s is not accessible with this session: %w", name, err)
		}
		return fmt.Errorf("verify channel: %w", err)
	}

	fmt.Fprintf(out, "\nchannel @%s is readable: %s (id %d)\n", ch.Username, ch.Title, ch.ID)
	return nil
}
