package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "user":
		err = handleUser(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: usersvc auth <login|logout|who>")
		return nil
	}

	switch args[0] {
	case "login":
		return loginUser(args[1:])
	case "logout":
		return logoutUser()
	case "who":
		whoAmI()
		return nil
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleUser(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: usersvc user <list|get|create|import|update|delete>")
		return nil
	}

	switch args[0] {
	case "list":
		return listUsers()
	case "get":
		return getUser(args[1:])
	case "create":
		return createUser(args[1:])
	case "import":
		return importUsers(args[1:])
	case "update":
		return updateUser(args[1:])
	case "delete":
		return deleteUser(args[1:])
	default:
		return fmt.Errorf("unknown user command: %s", args[0])
	}
}

type user struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type issue struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

type apiError struct {
	Error  string  `json:"error"`
	Issues []issue `json:"issues"`
}

type bulkOutcome struct {
	Created  []user `json:"created"`
	Failures []struct {
		Index  int     `json:"index"`
		Issues []issue `json:"issues"`
	} `json:"failures"`
}

// Auth commands
func loginUser(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("email and password are required")
	}

	var result struct {
		Token string `json:"token"`
	}
	status, body, err := call(http.MethodPost, "/auth/login", map[string]string{"email": *email, "password": *password})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError("login failed", status, body)
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}
	if err := saveToken(result.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	fmt.Printf("✓ Logged in as: %s\n", *email)
	return nil
}

func logoutUser() error {
	if err := os.Remove(tokenFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	fmt.Println("✓ Logged out")
	return nil
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	if len(token) > 20 {
		token = token[:20]
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token)
}

// User commands
func listUsers() error {
	status, body, err := call(http.MethodGet, "/users", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError("list failed", status, body)
	}

	var users []user
	if err := json.Unmarshal(body, &users); err != nil {
		return fmt.Errorf("failed to decode users: %w", err)
	}
	printUsers(users)
	return nil
}

func getUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: usersvc user get <user-id>")
	}
	status, body, err := call(http.MethodGet, "/users/"+args[0], nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError("get failed", status, body)
	}

	var u user
	if err := json.Unmarshal(body, &u); err != nil {
		return fmt.Errorf("failed to decode user: %w", err)
	}
	printUsers([]user{u})
	return nil
}

func createUser(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	fs.String("name", "", "display name")
	fs.String("email", "", "email address")
	fs.Int("age", 0, "age in years")
	fs.String("role", "", "role (user or admin)")
	fs.String("password", "", "password for login")
	_ = fs.Parse(args)

	status, body, err := call(http.MethodPost, "/users", setFlags(fs))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return responseError("create failed", status, body)
	}

	var u user
	if err := json.Unmarshal(body, &u); err != nil {
		return fmt.Errorf("failed to decode user: %w", err)
	}
	fmt.Printf("✓ User created: %s\n", u.ID)
	return nil
}

func importUsers(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "JSON file holding an array of users ('-' for stdin)")
	_ = fs.Parse(args)

	if *file == "" {
		fs.PrintDefaults()
		return fmt.Errorf("file is required")
	}

	var (
		data []byte
		err  error
	)
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *file, err)
	}

	status, body, err := call(http.MethodPost, "/users", json.RawMessage(data))
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusMultiStatus, http.StatusBadRequest:
	default:
		return responseError("import failed", status, body)
	}

	var outcome bulkOutcome
	if err := json.Unmarshal(body, &outcome); err != nil || (outcome.Created == nil && outcome.Failures == nil) {
		return responseError("import failed", status, body)
	}

	fmt.Printf("✓ %d created, ✗ %d failed\n", len(outcome.Created), len(outcome.Failures))
	if len(outcome.Failures) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tFIELD\tCATEGORY\tMESSAGE")
		for _, f := range outcome.Failures {
			for _, is := range f.Issues {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.Index, is.Field, is.Category, is.Message)
			}
		}
		w.Flush()
	}
	if status == http.StatusBadRequest {
		return fmt.Errorf("no records were created")
	}
	return nil
}

func updateUser(args []string) error {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: usersvc user update <user-id> [-name ...] [-email ...] [-age ...] [-role ...] [-clear-role]")
	}
	id := args[0]

	fs := flag.NewFlagSet("update", flag.ExitOnError)
	fs.String("name", "", "display name")
	fs.String("email", "", "email address")
	fs.Int("age", 0, "age in years")
	fs.String("role", "", "role (user or admin)")
	fs.String("password", "", "new password")
	clearRole := fs.Bool("clear-role", false, "remove the role")
	_ = fs.Parse(args[1:])

	payload := setFlags(fs)
	delete(payload, "clear-role")
	if *clearRole {
		payload["role"] = nil
	}

	status, body, err := call(http.MethodPatch, "/users/"+id, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError("update failed", status, body)
	}
	fmt.Printf("✓ User updated: %s\n", id)
	return nil
}

func deleteUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: usersvc user delete <user-id>")
	}
	status, body, err := call(http.MethodDelete, "/users/"+args[0], nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return responseError("delete failed", status, body)
	}
	fmt.Printf("✓ User deleted: %s\n", args[0])
	return nil
}

// Helper functions

// setFlags returns only the flags given on the command line so absent
// fields stay absent in the request body
func setFlags(fs *flag.FlagSet) map[string]any {
	payload := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.String()
		if f.Name == "age" {
			if n, err := strconv.Atoi(value); err == nil {
				payload[f.Name] = n
				return
			}
		}
		payload[f.Name] = value
	})
	return payload
}

func call(method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func responseError(prefix string, status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error == "" {
		return fmt.Errorf("%s: HTTP %d", prefix, status)
	}
	if len(apiErr.Issues) == 0 {
		return fmt.Errorf("%s: %s", prefix, apiErr.Error)
	}
	parts := make([]string, 0, len(apiErr.Issues))
	for _, is := range apiErr.Issues {
		parts = append(parts, fmt.Sprintf("%s %s", is.Field, is.Message))
	}
	return fmt.Errorf("%s: %s", prefix, strings.Join(parts, "; "))
}

func printUsers(users []user) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tAGE\tROLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", u.ID, u.Name, u.Email, u.Age, u.Role, u.CreatedAt)
	}
	w.Flush()
}

func getAPIURL() string {
	if url := os.Getenv("USERSVC_API"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".usersvc", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func addAuthHeader(req *http.Request) {
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`usersvc CLI

Usage:
  usersvc <command> [options]

Commands:
  auth   Authentication (login, logout, who)
  user   User records (list, get, create, import, update, delete)
  help   Show this help message

Environment Variables:
  USERSVC_API    API endpoint (default: http://localhost:8080/api)

Examples:
  usersvc auth login -email admin@example.com -password secret123
  usersvc user create -name Ann -email ann@example.com -age 30
  usersvc user import -file users.json
  usersvc user update 6f1c... -age 31 -clear-role
  usersvc user list
`)
}
