// Breakerdemo drives a running gateway through a full circuit breaker
// cycle against one upstream and prints what it observes at each phase.
//
// Usage:
//
//	go run ./scripts/breakerdemo -gateway http://localhost:8080 -upstream orders -upstream-url http://localhost:9001
//
// The target upstream should be the simulator from scripts/upstream so the
// demo can flip it between healthy and failing via /toggle.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		gatewayURL  = flag.String("gateway", "http://localhost:8080", "Gateway URL")
		upstream    = flag.String("upstream", "orders", "Upstream name as routed by the gateway")
		upstreamURL = flag.String("upstream-url", "http://localhost:9001", "Direct URL of the upstream simulator")
		requests    = flag.Int("requests", 20, "Requests per phase")
		cooldown    = flag.Duration("cooldown", 5*time.Second, "How long to wait for the open state to elapse")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	route := *gatewayURL + "/" + *upstream + "/orders"

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║                   CIRCUIT BREAKER DEMO                         ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: Verify normal operation
	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Operation ━━━" + colorReset)
	fmt.Println("Sending requests through a closed breaker...")

	statuses := sendBatch(client, route, *requests)
	printStatuses(statuses)
	if statuses[http.StatusCreated] == 0 {
		fmt.Println(colorRed + "  ✗ No successful responses! Are the gateway and upstream running?" + colorReset)
		os.Exit(1)
	}
	printBreakerState(client, *gatewayURL, *upstream)
	fmt.Println(colorGreen + "  ✓ Normal operation verified" + colorReset)
	fmt.Println()

	// PHASE 2: Force failures until the breaker opens
	fmt.Println(colorBlue + "━━━ PHASE 2: Tripping the Breaker ━━━" + colorReset)
	fmt.Println("Toggling the upstream into failure mode...")

	if err := toggle(client, *upstreamURL); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not toggle upstream: %v\n"+colorReset, err)
		os.Exit(1)
	}

	statuses = sendBatch(client, route, *requests)
	printStatuses(statuses)
	if statuses[http.StatusServiceUnavailable] > 0 {
		fmt.Println(colorGreen + "  ✓ Breaker opened, later requests were rejected without reaching the upstream" + colorReset)
	} else {
		fmt.Println(colorYellow + "  ⚠ Breaker did not open (check the gateway's failure threshold and window size)" + colorReset)
	}
	printBreakerState(client, *gatewayURL, *upstream)
	fmt.Println()

	// PHASE 3: Recovery through the half-open state
	fmt.Println(colorBlue + "━━━ PHASE 3: Recovery ━━━" + colorReset)
	fmt.Println("Toggling the upstream back to healthy...")

	if err := toggle(client, *upstreamURL); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not toggle upstream: %v\n"+colorReset, err)
		os.Exit(1)
	}

	fmt.Printf("Waiting %s for the open state to elapse...\n", *cooldown)
	time.Sleep(*cooldown)

	statuses = sendBatch(client, route, *requests)
	printStatuses(statuses)
	if statuses[http.StatusCreated] > 0 {
		fmt.Println(colorGreen + "  ✓ Probe calls succeeded and the breaker closed again" + colorReset)
	} else {
		fmt.Println(colorYellow + "  ⚠ No successes after cooldown (is the open state wait longer than -cooldown?)" + colorReset)
	}
	printBreakerState(client, *gatewayURL, *upstream)
	fmt.Println()

	// PHASE 4: Admin reset
	fmt.Println(colorBlue + "━━━ PHASE 4: Admin Reset ━━━" + colorReset)
	fmt.Println("Resetting the breaker through the admin API...")

	resetURL := fmt.Sprintf("%s/admin/breakers/%s/reset", *gatewayURL, *upstream)
	resp, err := client.Post(resetURL, "application/json", nil)
	if err != nil {
		fmt.Printf(colorYellow+"  Could not reset breaker: %v\n"+colorReset, err)
	} else {
		fmt.Printf("  POST %s -> %d\n", resetURL, resp.StatusCode)
		resp.Body.Close()
	}
	printBreakerState(client, *gatewayURL, *upstream)
	fmt.Println()

	// Summary
	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║                      DEMO COMPLETE                             ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()
	fmt.Println("Key behaviors exercised:")
	fmt.Println("  1. Closed breaker forwarding traffic")
	fmt.Println("  2. Failure threshold tripping the breaker open")
	fmt.Println("  3. Half-open probing and promotion back to closed")
	fmt.Println("  4. Administrative reset via /admin/breakers")
	fmt.Println()
	fmt.Println("Check the gateway logs for state transition events.")
}

func sendBatch(client *http.Client, route string, count int) map[int]int {
	statuses := make(map[int]int)
	for i := 0; i < count; i++ {
		req, err := http.NewRequest("POST", route, strings.NewReader(`{"item":"demo","amount":1}`))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		statuses[resp.StatusCode]++
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return statuses
}

func printStatuses(statuses map[int]int) {
	fmt.Println("\n  Status distribution:")
	for code, count := range statuses {
		fmt.Printf("    %d → %d requests\n", code, count)
	}
}

func toggle(client *http.Client, upstreamURL string) error {
	resp, err := client.Post(upstreamURL+"/toggle", "text/plain", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toggle returned status %d", resp.StatusCode)
	}
	return nil
}

func printBreakerState(client *http.Client, gatewayURL, upstream string) {
	resp, err := client.Get(fmt.Sprintf("%s/admin/breakers/%s", gatewayURL, upstream))
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch breaker state: %v\n"+colorReset, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	var view map[string]interface{}
	if err := json.Unmarshal(body, &view); err != nil {
		return
	}

	state, _ := view["state"].(string)
	rate, _ := view["failure_rate"].(float64)
	colored := colorGreen + state + colorReset
	if state == "OPEN" {
		colored = colorRed + state + colorReset
	} else if state == "HALF_OPEN" {
		colored = colorYellow + state + colorReset
	}
	fmt.Printf("  Breaker %s → %s (failure rate %.1f%%)\n", upstream, colored, rate)
}
