// garan24ctl is an operator CLI for the bridge admin API and order events.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	garan24ctl get -id N
//	garan24ctl status -id N -status STATUS
//	garan24ctl refund -id N -amount 12.50 [-reason TEXT]
//	garan24ctl remove-item -id N -item N
//	garan24ctl sync -id N
//	garan24ctl check -id N
//	garan24ctl jobs -run purge-incomplete|pending-checks
//	garan24ctl events [-brokers LIST] [-topic NAME] [-group ID]
//
// The admin token is read from ADMIN_TOKEN (a .env file is loaded when present).
//
// Examples:
//
//	garan24ctl status -id 1042 -status completed
//	garan24ctl refund -id 1042 -amount 250.00 -reason "returned item"
//	STATUS=$(garan24ctl get -id 1042 -q)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"garan24-bridge/internal/events"
	"garan24-bridge/internal/model"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	bridgeURL  string
	adminToken string
	quiet      bool
	noColor    bool
	verbose    bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "get":
		runGet(args)
	case "status":
		runStatus(args)
	case "refund":
		runRefund(args)
	case "remove-item":
		runRemoveItem(args)
	case "sync":
		runOrderAction(args, "sync", "Garan24 order updated")
	case "check":
		runOrderAction(args, "pending-check", "Pending reservation checked")
	case "jobs":
		runJobs(args)
	case "events":
		runEvents(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `garan24ctl - Garan24 bridge admin tool

Usage:
  garan24ctl <command> [options]

Commands:
  get          Show an order with its Garan24 metadata
  status       Change the order status (completed activates, cancelled cancels)
  refund       Refund an activated order
  remove-item  Remove a line item and update the Garan24 order
  sync         Re-send an edited on-hold order to Garan24
  check        Check a pending reservation now
  jobs         Run a maintenance job (purge-incomplete, pending-checks)
  events       Tail order events from Kafka

Examples:
  garan24ctl status -id 1042 -status completed
  garan24ctl refund -id 1042 -amount 250.00 -reason "returned item"
  garan24ctl jobs -run pending-checks
  garan24ctl events -brokers localhost:9092

Run 'garan24ctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every admin command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&bridgeURL, "bridge", envOr("BRIDGE_URL", "http://localhost:8080"), "Bridge base URL")
	fs.StringVar(&adminToken, "token", os.Getenv("ADMIN_TOKEN"), "Admin bearer token")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the result")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: garan24ctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// ORDER COMMANDS
// =============================================================================

func runGet(args []string) {
	fs := newFlagSet("get", "get -id N [options]")
	var id int64
	fs.Int64Var(&id, "id", 0, "Order ID (required)")
	parse(fs, args)

	if id <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	var o model.Order
	if err := doRequest("GET", orderPath(id, ""), nil, &o); err != nil {
		fatal("Failed to get order: %v", err)
	}
	if quiet {
		fmt.Println(o.Status)
		return
	}
	printOrder(&o)
}

func runStatus(args []string) {
	fs := newFlagSet("status", "status -id N -status STATUS [options]")
	var id int64
	var status string
	fs.Int64Var(&id, "id", 0, "Order ID (required)")
	fs.StringVar(&status, "status", "", "New status: pending, on-hold, processing, completed, cancelled, refunded, failed (required)")
	parse(fs, args)

	if id <= 0 || status == "" {
		fs.Usage()
		os.Exit(1)
	}

	var o model.Order
	if err := doRequest("POST", orderPath(id, "/status"), map[string]string{"status": status}, &o); err != nil {
		fatal("Failed to change status: %v", err)
	}
	if quiet {
		fmt.Println(o.Status)
		return
	}
	printSuccess("Order %d is now %s", o.ID, o.Status)
	printOrder(&o)
}

func runRefund(args []string) {
	fs := newFlagSet("refund", "refund -id N -amount AMOUNT [options]")
	var id int64
	var amount, reason string
	fs.Int64Var(&id, "id", 0, "Order ID (required)")
	fs.StringVar(&amount, "amount", "", "Amount in major units, e.g. 12.50 (required)")
	fs.StringVar(&reason, "reason", "", "Refund reason sent to Garan24")
	parse(fs, args)

	if id <= 0 || amount == "" {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]string{"amount": amount, "reason": reason}
	var o model.Order
	if err := doRequest("POST", orderPath(id, "/refunds"), body, &o); err != nil {
		fatal("Refund failed: %v", err)
	}
	if quiet {
		fmt.Println(model.FormatMoney(o.RefundedTotal, o.Currency))
		return
	}
	printSuccess("Refunded %s %s", amount, o.Currency)
	printOrder(&o)
}

func runRemoveItem(args []string) {
	fs := newFlagSet("remove-item", "remove-item -id N -item N [options]")
	var id, item int64
	fs.Int64Var(&id, "id", 0, "Order ID (required)")
	fs.Int64Var(&item, "item", 0, "Line item ID (required)")
	parse(fs, args)

	if id <= 0 || item <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	var o model.Order
	if err := doRequest("DELETE", orderPath(id, fmt.Sprintf("/items/%d", item)), nil, &o); err != nil {
		fatal("Failed to remove item: %v", err)
	}
	if quiet {
		fmt.Println(model.FormatMoney(o.Total, o.Currency))
		return
	}
	printSuccess("Item %d removed", item)
	printOrder(&o)
}

// runOrderAction runs an admin action that takes no body and returns the
// order.
func runOrderAction(args []string, action, done string) {
	fs := newFlagSet(action, action+" -id N [options]")
	var id int64
	fs.Int64Var(&id, "id", 0, "Order ID (required)")
	parse(fs, args)

	if id <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	var o model.Order
	if err := doRequest("POST", orderPath(id, "/"+action), nil, &o); err != nil {
		fatal("%s failed: %v", action, err)
	}
	if quiet {
		fmt.Println(o.Status)
		return
	}
	printSuccess("%s", done)
	printOrder(&o)
}

func runJobs(args []string) {
	fs := newFlagSet("jobs", "jobs -run JOB [options]")
	var job string
	fs.StringVar(&job, "run", "", "Job to run: purge-incomplete or pending-checks (required)")
	parse(fs, args)

	switch job {
	case "purge-incomplete", "pending-checks":
	default:
		fs.Usage()
		os.Exit(1)
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := doRequest("POST", "/admin/jobs/"+job, nil, &out); err != nil {
		fatal("Job %s failed: %v", job, err)
	}
	if quiet {
		fmt.Println(out.Count)
		return
	}
	printSuccess("%s touched %d orders", job, out.Count)
}

// =============================================================================
// EVENTS COMMAND
// =============================================================================

func runEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	var brokers, topic, group string
	fs.StringVar(&brokers, "brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "Comma-separated Kafka brokers")
	fs.StringVar(&topic, "topic", envOr("KAFKA_TOPIC", "garan24.orders"), "Order events topic")
	fs.StringVar(&group, "group", "garan24ctl", "Consumer group ID")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Print the raw event JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: garan24ctl events [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if noColor {
		disableColors()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(strings.Split(brokers, ","), topic, group)
	defer consumer.Close()

	printInfo("Tailing %s on %s (Ctrl-C to stop)", topic, brokers)

	err := consumer.Consume(ctx, func(_ context.Context, payload []byte) error {
		var ev events.OrderEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			printWarning("Skipping malformed event: %v", err)
			return nil
		}
		printEvent(ev)
		if verbose {
			printJSON(payload, "    ")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fatal("Consuming events: %v", err)
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func orderPath(id int64, suffix string) string {
	return fmt.Sprintf("/admin/orders/%d%s", id, suffix)
}

// doRequest calls the admin API and decodes a successful response into out.
// Error responses are reported with their API error code.
func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(bridgeURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// Order meta worth showing to an operator.
var shownMeta = []string{
	model.MetaAPI,
	model.MetaReservation,
	model.MetaInvoiceNumber,
}

func printOrder(o *model.Order) {
	fmt.Printf("  Order:   %s%d%s\n", colorBold, o.ID, colorReset)
	fmt.Printf("  Status:  %s%s%s\n", colorCyan, o.Status, colorReset)
	fmt.Printf("  Method:  %s\n", o.PaymentMethod)
	fmt.Printf("  Total:   %s%s%s\n", colorGreen, model.FormatMoney(o.Total, o.Currency), colorReset)
	if o.RefundedTotal > 0 {
		fmt.Printf("  Refunded: %s\n", model.FormatMoney(o.RefundedTotal, o.Currency))
	}
	for _, key := range shownMeta {
		if v := o.MetaValue(key); v != "" {
			fmt.Printf("  %s%s:%s %s\n", colorGray, key, colorReset, v)
		}
	}
	if len(o.Items) > 0 {
		fmt.Printf("  %sItems:%s\n", colorYellow, colorReset)
		for _, it := range o.Items {
			fmt.Printf("    - %d: %s x%d (%s)\n", it.ID, it.Name, it.Quantity, model.FormatMoney(it.Total, o.Currency))
		}
	}
	if n := len(o.Notes); n > 0 {
		fmt.Printf("  %sLast note:%s %s\n", colorYellow, colorReset, o.Notes[n-1].Content)
	}
}

func printEvent(ev events.OrderEvent) {
	line := fmt.Sprintf("%s %s%-22s%s order=%d",
		ev.Timestamp.Format(time.RFC3339), colorCyan, ev.Type, colorReset, ev.OrderID)
	if ev.Status != "" {
		line += fmt.Sprintf(" status=%s", ev.Status)
	}
	if ev.Previous != "" {
		line += fmt.Sprintf(" from=%s", ev.Previous)
	}
	if ev.API != "" {
		line += fmt.Sprintf(" api=%s", ev.API)
	}
	if ev.Reference != "" {
		line += fmt.Sprintf(" ref=%s", ev.Reference)
	}
	if ev.Amount != 0 {
		line += " amount=" + model.FormatMoney(ev.Amount, ev.Currency)
	}
	fmt.Println(line)
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(prefix + pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
