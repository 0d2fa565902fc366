// Package main provides the PropTrust CLI for document verification and
// tamper checks against a running API server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	version        = "0.1.0"
	defaultAPI     = "http://localhost:8000"
	defaultTimeout = 120 * time.Second
)

// Exit codes.
const (
	exitOK       = 0
	exitBadInput = 2
	exitExternal = 3
	exitLedger   = 4
	exitInternal = 5
)

// Config holds CLI configuration.
type Config struct {
	APIEndpoint string
	Timeout     time.Duration
	OutputJSON  bool
}

// CLI is the main command-line interface.
type CLI struct {
	config Config
	client *http.Client
	stdout io.Writer
	stderr io.Writer
}

// NewCLI creates a new CLI instance.
func NewCLI(config Config) *CLI {
	return &CLI{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("proptrust", flag.ContinueOnError)

	var (
		apiEndpoint = flags.String("api", getEnvOrDefault("PROPTRUST_API", defaultAPI), "API endpoint")
		timeout     = flags.Duration("timeout", defaultTimeout, "Request timeout")
		jsonOutput  = flags.Bool("json", false, "Output JSON format")
		showVersion = flags.Bool("version", false, "Show version")
	)

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitBadInput
	}

	if *showVersion {
		fmt.Printf("proptrust version %s\n", version)
		return exitOK
	}

	if flags.NArg() == 0 {
		printUsage()
		return exitBadInput
	}

	cli := NewCLI(Config{
		APIEndpoint: *apiEndpoint,
		Timeout:     *timeout,
		OutputJSON:  *jsonOutput,
	})

	switch flags.Arg(0) {
	case "verify":
		return cli.cmdVerify(flags.Args()[1:])
	case "tamper":
		return cli.cmdTamper(flags.Args()[1:])
	case "status":
		return cli.cmdStatus()
	case "stats":
		return cli.cmdStats()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flags.Arg(0))
		printUsage()
		return exitBadInput
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: proptrust [flags] <command>

Commands:
  verify [-type RTC|MR|EC|SALE_DEED] [-anchor] [-property <id>] <file>
  tamper <property_id> <file>
  status
  stats

Flags:
  -api       API endpoint (default http://localhost:8000)
  -timeout   Request timeout
  -json      Raw JSON output
  -version   Show version
`)
}

// cmdVerify uploads a document for verification.
func (c *CLI) cmdVerify(args []string) int {
	flags := flag.NewFlagSet("verify", flag.ContinueOnError)
	docType := flags.String("type", "RTC", "Declared document type")
	anchor := flags.Bool("anchor", false, "Anchor the fingerprint on the ledger")
	propertyID := flags.String("property", "", "Existing property id to re-verify")
	if err := flags.Parse(args); err != nil {
		return exitBadInput
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(c.stderr, "verify requires exactly one file argument")
		return exitBadInput
	}

	fields := map[string]string{
		"document_type":   *docType,
		"store_on_ledger": strconv.FormatBool(*anchor),
	}
	if *propertyID != "" {
		fields["property_id"] = *propertyID
	}

	status, body, err := c.upload("/api/v1/verify/upload", flags.Arg(0), fields)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitExternal
	}
	if code := exitForStatus(status); code != exitOK {
		c.printError(body)
		return code
	}

	if c.config.OutputJSON {
		fmt.Fprintln(c.stdout, string(body))
	} else {
		var out struct {
			PropertyID string `json:"property_id"`
			RiskScore  int    `json:"risk_score"`
			RiskLevel  string `json:"risk_level"`
			Ledger     struct {
				Stored         bool   `json:"stored"`
				FingerprintHex string `json:"fingerprint_hex"`
			} `json:"ledger"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			fmt.Fprintf(c.stderr, "Error: invalid response: %v\n", err)
			return exitInternal
		}
		fmt.Fprintf(c.stdout, "property:    %s\n", out.PropertyID)
		fmt.Fprintf(c.stdout, "risk:        %d (%s)\n", out.RiskScore, out.RiskLevel)
		fmt.Fprintf(c.stdout, "fingerprint: %s\n", out.Ledger.FingerprintHex)
		fmt.Fprintf(c.stdout, "anchored:    %t\n", out.Ledger.Stored)

		if *anchor && !out.Ledger.Stored {
			fmt.Fprintln(c.stderr, "warning: verification persisted but ledger anchoring failed")
			return exitLedger
		}
	}
	return exitOK
}

// cmdTamper re-verifies a document against its anchored fingerprint.
func (c *CLI) cmdTamper(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(c.stderr, "tamper requires <property_id> <file>")
		return exitBadInput
	}

	status, body, err := c.upload("/api/v1/tamper/check?property_id="+args[0], args[1], nil)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitExternal
	}
	if code := exitForStatus(status); code != exitOK {
		c.printError(body)
		return code
	}

	if c.config.OutputJSON {
		fmt.Fprintln(c.stdout, string(body))
		return exitOK
	}

	var out struct {
		Status         string   `json:"status"`
		HashMatched    bool     `json:"hash_matched"`
		RiskScoreDelta int      `json:"risk_score_delta"`
		Warnings       []string `json:"warnings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		fmt.Fprintf(c.stderr, "Error: invalid response: %v\n", err)
		return exitInternal
	}
	fmt.Fprintf(c.stdout, "status:       %s\n", out.Status)
	fmt.Fprintf(c.stdout, "hash matched: %t\n", out.HashMatched)
	fmt.Fprintf(c.stdout, "score delta:  %+d\n", out.RiskScoreDelta)
	for _, w := range out.Warnings {
		fmt.Fprintf(c.stdout, "warning:      %s\n", w)
	}
	return exitOK
}

// cmdStatus prints ledger connectivity.
func (c *CLI) cmdStatus() int {
	return c.get("/api/v1/ledger/status")
}

// cmdStats prints engine statistics.
func (c *CLI) cmdStats() int {
	return c.get("/api/v1/statistics")
}

func (c *CLI) get(path string) int {
	resp, err := c.client.Get(c.config.APIEndpoint + path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitExternal
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if code := exitForStatus(resp.StatusCode); code != exitOK {
		c.printError(body)
		return code
	}
	fmt.Fprintln(c.stdout, string(body))
	return exitOK
}

// upload posts a multipart file with extra form fields.
func (c *CLI) upload(path, file string, fields map[string]string) (int, []byte, error) {
	document, err := os.ReadFile(file)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s: %w", file, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return 0, nil, err
	}
	if _, err := part.Write(document); err != nil {
		return 0, nil, err
	}
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, c.config.APIEndpoint+path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func (c *CLI) printError(body []byte) {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		fmt.Fprintf(c.stderr, "Error [%s]: %s\n", envelope.Error.Code, envelope.Error.Message)
		return
	}
	fmt.Fprintf(c.stderr, "Error: %s\n", body)
}

// exitForStatus maps HTTP statuses onto the documented exit codes.
func exitForStatus(status int) int {
	switch {
	case status >= 200 && status < 300:
		return exitOK
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return exitBadInput
	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return exitExternal
	case status == http.StatusBadGateway:
		return exitLedger
	default:
		return exitInternal
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
