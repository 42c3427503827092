package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/healthmatters/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	Email      string `json:"email,omitempty"`
	Session    string `json:"session,omitempty"`
}

var buildVersion = "dev"

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register", "login":
		err = commandAuth(cmd, args)
	case "logout":
		err = commandLogout()
	case "whoami":
		err = commandWhoami()
	case "reset-password":
		err = commandResetPassword(args)
	case "reset-verify":
		err = commandResetVerify(args)
	case "profile":
		err = commandProfile(args)
	case "upload":
		err = commandUpload(args)
	case "results":
		err = commandResults(args)
	case "tips":
		err = commandTips()
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandAuth(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+apiclient.DefaultBaseURL+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret(*password, "Password: ")
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var resp apiclient.AuthResponse
	if name == "register" {
		resp, err = client.Register(ctx, *email, secret)
	} else {
		resp, err = client.Login(ctx, *email, secret)
	}
	if err != nil {
		return err
	}
	cfg.Email = resp.User.Email
	cfg.Session = resp.Session
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(strings.ToLower(resp.Message))
	return nil
}

func commandLogout() error {
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.Logout(ctx, cfg.Session); err != nil {
		return err
	}
	cfg.Session = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandWhoami() error {
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	user, err := client.CurrentUser(ctx, cfg.Session)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s), member since %s\n", user.Email, user.ID, user.CreatedAt.Format("2006-01-02"))
	return nil
}

func commandResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "Account email address")
	fs.Parse(args)
	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	cfg, _ := loadConfig()
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	msg, err := client.RequestPasswordReset(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func commandResetVerify(args []string) error {
	fs := flag.NewFlagSet("reset-verify", flag.ExitOnError)
	token := fs.String("token", "", "Token from the reset email")
	password := fs.String("password", "", "New password (supply to avoid prompt)")
	fs.Parse(args)
	if strings.TrimSpace(*token) == "" {
		return errors.New("--token is required")
	}
	secret, err := readSecret(*password, "New password: ")
	if err != nil {
		return err
	}
	cfg, _ := loadConfig()
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := client.VerifyPasswordReset(ctx, strings.TrimSpace(*token), secret); err != nil {
		return err
	}
	cfg.Session = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("password updated, please login again")
	return nil
}

func commandProfile(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch sub {
	case "show":
		profile, err := client.GetHealthProfile(ctx, cfg.Session)
		if err != nil {
			return err
		}
		if profile == nil {
			fmt.Println("no health profile saved, use 'hm profile set'")
			return nil
		}
		return printJSON(profile)
	case "bmi":
		bmi, err := client.GetBMI(ctx, cfg.Session)
		if err != nil {
			return err
		}
		fmt.Printf("BMI %.1f (%s)\n", bmi.BMI, bmi.Category)
		return nil
	case "set":
		fs := flag.NewFlagSet("profile set", flag.ExitOnError)
		birthdate := fs.String("birthdate", "", "Birthdate YYYY-MM-DD")
		sex := fs.String("sex", "", "male|female")
		feet := fs.Int("feet", 0, "Height feet")
		inches := fs.Int("inches", 0, "Height inches")
		pounds := fs.Int("pounds", 0, "Weight in pounds")
		conditions := fs.String("conditions", "", "Comma separated medical conditions")
		medications := fs.String("medications", "", "Comma separated medications")
		fs.Parse(args)
		saved, err := client.SaveHealthProfile(ctx, cfg.Session, apiclient.HealthProfile{
			Birthdate:         *birthdate,
			Sex:               *sex,
			HeightFeet:        *feet,
			HeightInches:      *inches,
			WeightPounds:      *pounds,
			MedicalConditions: splitList(*conditions),
			Medications:       splitList(*medications),
		})
		if err != nil {
			return err
		}
		return printJSON(saved)
	default:
		return fmt.Errorf("unknown profile command: %s", sub)
	}
}

func commandUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	file := fs.String("file", "", "Path to the lab report PDF")
	fs.Parse(args)
	if strings.TrimSpace(*file) == "" {
		return errors.New("--file is required")
	}
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	fmt.Println("uploading and analysing, this can take a minute...")
	result, err := client.UploadLabResult(ctx, cfg.Session, *file, f)
	if err != nil {
		return err
	}
	printLabResult(result)
	return nil
}

func commandResults(args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch sub {
	case "list":
		results, err := client.ListLabResults(ctx, cfg.Session)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no lab results uploaded yet")
			return nil
		}
		for _, r := range results {
			printLabResult(r)
		}
		return nil
	case "report":
		fs := flag.NewFlagSet("results report", flag.ExitOnError)
		id := fs.String("id", "", "Lab result identifier")
		out := fs.String("out", "", "Output file (default lab-report-<id>.pdf)")
		fs.Parse(args)
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		path := *out
		if path == "" {
			path = "lab-report-" + *id + ".pdf"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := client.DownloadLabReport(ctx, cfg.Session, *id, f); err != nil {
			f.Close()
			_ = os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", path)
		return nil
	default:
		return fmt.Errorf("unknown results command: %s", sub)
	}
}

func commandTips() error {
	cfg, client, err := sessionClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	tips, err := client.HealthTips(ctx, cfg.Session, nil, nil, nil)
	if err != nil {
		return err
	}
	for _, tip := range tips {
		fmt.Printf("- %s\n", tip)
	}
	return nil
}

func printLabResult(r apiclient.LabResult) {
	fmt.Printf("%s  %s  %s\n", r.ID, r.UploadedAt.Format("2006-01-02 15:04"), r.FileName)
	if bmi := r.Analysis.BMI; bmi != nil {
		fmt.Printf("  BMI %.1f (%s)\n", bmi.Score, bmi.Category)
	}
	for _, test := range r.Analysis.Analysis {
		line := fmt.Sprintf("  %-28s %s %s", test.TestName, test.Result, test.Unit)
		if test.NormalRange != "" {
			line += " [" + test.NormalRange + "]"
		}
		if test.Severity != "" {
			line += " " + test.Severity
		}
		fmt.Println(line)
	}
}

func sessionClient() (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(cfg.Session) == "" {
		return cliConfig{}, nil, errors.New("please login first using 'hm login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func readSecret(flagValue, prompt string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: apiclient.DefaultBaseURL}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = apiclient.DefaultBaseURL
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hm", "config.json"), nil
}

func printUsage() {
	fmt.Printf("hm CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	hm register --email user@example.com [--password secret] [--api http://localhost:5000]
	hm login --email user@example.com [--password secret] [--api http://localhost:5000]
	hm logout
	hm whoami
	hm reset-password --email user@example.com
	hm reset-verify --token <token> [--password secret]
	hm profile [show|bmi]
	hm profile set --birthdate 1990-06-15 --sex female --feet 5 --inches 8 --pounds 150 [--conditions a,b] [--medications c]
	hm upload --file report.pdf
	hm results [list]
	hm results report --id <result-id> [--out file.pdf]
	hm tips
	hm version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
