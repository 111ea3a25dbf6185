package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minActions    = 15
	maxActions    = 120
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var lifeAreas = []string{"Health", "Career", "Learning", "Relationships", "Finances", "Creativity"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the LifeStock API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// apiEnvelope mirrors the standard response wrapper
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newSimulationClient creates and authenticates a new simulation client
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"stocks":    {name: "Create Stock"},
			"score":     {name: "Update Score"},
			"buy":       {name: "Equity Buy"},
			"sell":      {name: "Equity Sell"},
			"chain":     {name: "Option Chain"},
			"optbuy":    {name: "Option Buy"},
			"optwrite":  {name: "Option Write"},
			"optexit":   {name: "Option Exit"},
			"portfolio": {name: "Get Portfolio"},
		},
	}

	if err := sc.authenticate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *simulationClient) authenticate() error {
	body := map[string]string{
		"api_key":    "test-api-key",
		"api_secret": "test-api-secret",
	}

	data, err := sc.do("auth", "POST", "/api/v1/auth/token", body, false, "")
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	var token struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	sc.authToken = token.Token
	return nil
}

// do issues a request, records route stats and unwraps the response envelope
func (sc *simulationClient) do(route, method, path string, body interface{}, authed bool, idempotencyKey string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)

	sc.mu.Lock()
	rs := sc.stats[route]
	rs.addDuration(elapsed)
	if err != nil || resp.StatusCode >= 500 {
		rs.failures++
	}
	sc.mu.Unlock()

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("bad response (%d): %s", resp.StatusCode, raw)
	}
	if !envelope.Success {
		code := "UNKNOWN"
		message := "no error details"
		if envelope.Error != nil {
			code = envelope.Error.Code
			message = envelope.Error.Message
		}
		return nil, fmt.Errorf("%s: %s", code, message)
	}
	return envelope.Data, nil
}

// seedPortfolio creates the life stocks the trading actions run against
func (sc *simulationClient) seedPortfolio() ([]string, error) {
	var stockIDs []string
	for _, name := range lifeAreas {
		body := map[string]interface{}{
			"name":   name,
			"weight": 1 + rand.Float64()*4,
			"score":  40 + rand.Float64()*50,
		}
		data, err := sc.do("stocks", "POST", "/api/v1/portfolio/stocks", body, true, "")
		if err != nil {
			return nil, err
		}

		var stock struct {
			StockID string `json:"stock_id"`
		}
		if err := json.Unmarshal(data, &stock); err != nil {
			return nil, err
		}
		stockIDs = append(stockIDs, stock.StockID)
	}
	return stockIDs, nil
}

// chainContracts fetches the weekly chain and returns its contract IDs with
// current premiums
type quotedContract struct {
	ContractID string  `json:"contract_id"`
	Premium    float64 `json:"premium"`
}

func (sc *simulationClient) chainContracts() ([]quotedContract, error) {
	data, err := sc.do("chain", "GET", "/api/v1/options/chain", nil, true, "")
	if err != nil {
		return nil, err
	}

	var chain struct {
		Strikes []struct {
			Call *quotedContract `json:"call"`
			Put  *quotedContract `json:"put"`
		} `json:"strikes"`
	}
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, err
	}

	var contracts []quotedContract
	for _, strike := range chain.Strikes {
		if strike.Call != nil {
			contracts = append(contracts, *strike.Call)
		}
		if strike.Put != nil {
			contracts = append(contracts, *strike.Put)
		}
	}
	return contracts, nil
}

// runActions performs one worker's share of random trading actions
func (sc *simulationClient) runActions(workerID, actions int, stockIDs []string) {
	logger := log.With().Int("worker", workerID).Logger()

	for i := 0; i < actions; i++ {
		stockID := stockIDs[rand.Intn(len(stockIDs))]

		switch rand.Intn(6) {
		case 0: // score update
			body := map[string]interface{}{"score": rand.Float64() * 100}
			if _, err := sc.do("score", "PUT", "/api/v1/portfolio/stocks/"+stockID+"/score", body, true, ""); err != nil {
				logger.Warn().Err(err).Msg("score update rejected")
			}
		case 1, 2: // equity buy
			body := map[string]interface{}{
				"stock_id": stockID,
				"quantity": float64(1 + rand.Intn(20)),
				"price":    1000 + rand.Float64()*9000,
			}
			if _, err := sc.do("buy", "POST", "/api/v1/trading/buy", body, true, uuid.New().String()); err != nil {
				logger.Warn().Err(err).Msg("buy rejected")
			}
		case 3: // equity sell
			body := map[string]interface{}{
				"stock_id": stockID,
				"quantity": float64(1 + rand.Intn(10)),
				"price":    1000 + rand.Float64()*9000,
			}
			if _, err := sc.do("sell", "POST", "/api/v1/trading/sell", body, true, uuid.New().String()); err != nil {
				logger.Warn().Err(err).Msg("sell rejected")
			}
		case 4: // option buy or write
			contracts, err := sc.chainContracts()
			if err != nil || len(contracts) == 0 {
				logger.Warn().Err(err).Msg("chain fetch failed")
				continue
			}
			contract := contracts[rand.Intn(len(contracts))]
			body := map[string]interface{}{
				"contract_id": contract.ContractID,
				"quantity":    float64(1 + rand.Intn(5)),
				"premium":     contract.Premium,
			}
			route, path := "optbuy", "/api/v1/options/buy"
			if rand.Intn(2) == 0 {
				route, path = "optwrite", "/api/v1/options/write"
			}
			if _, err := sc.do(route, "POST", path, body, true, uuid.New().String()); err != nil {
				logger.Warn().Err(err).Msg("option order rejected")
			}
		case 5: // exit a random open position
			data, err := sc.do("portfolio", "GET", "/api/v1/portfolio", nil, true, "")
			if err != nil {
				logger.Warn().Err(err).Msg("portfolio fetch failed")
				continue
			}
			var portfolio struct {
				OptionPositions []struct {
					ContractID   string  `json:"contract_id"`
					PositionType string  `json:"position_type"`
					Quantity     float64 `json:"quantity"`
				} `json:"option_positions"`
			}
			if err := json.Unmarshal(data, &portfolio); err != nil || len(portfolio.OptionPositions) == 0 {
				continue
			}
			position := portfolio.OptionPositions[rand.Intn(len(portfolio.OptionPositions))]
			body := map[string]interface{}{
				"contract_id":   position.ContractID,
				"position_type": position.PositionType,
				"quantity":      math.Max(1, math.Floor(position.Quantity/2)),
			}
			if _, err := sc.do("optexit", "POST", "/api/v1/options/exit", body, true, uuid.New().String()); err != nil {
				logger.Warn().Err(err).Msg("exit rejected")
			}
		}
	}
}

// printReport renders the per-route performance summary
func (sc *simulationClient) printReport() {
	fmt.Println("\n=== Simulation Performance Report ===")
	keys := make([]string, 0, len(sc.stats))
	for key := range sc.stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rs := sc.stats[key]
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("\n%s (%d calls, %d failures)\n", rs.name, rs.totalCalls, rs.failures)
		fmt.Printf("  min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
			min, max, mean, median, p95, p99)
	}
}

func main() {
	log.Info().Msg("starting LifeStock trading simulation")

	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create simulation client")
	}

	// Top up the cash account so the random trading has room to run
	deposit := map[string]interface{}{"amount": 10_000_000.0}
	if _, err := sc.do("portfolio", "POST", "/api/v1/portfolio/funds", deposit, true, uuid.New().String()); err != nil {
		log.Fatal().Err(err).Msg("failed to add funds")
	}

	stockIDs, err := sc.seedPortfolio()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed portfolio")
	}
	log.Info().Int("stocks", len(stockIDs)).Msg("portfolio seeded")

	totalActions := minActions + rand.Intn(maxActions-minActions+1)
	perWorker := totalActions / numWorkers
	log.Info().Int("total_actions", totalActions).Int("workers", numWorkers).Msg("running trading actions")

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			sc.runActions(workerID, perWorker, stockIDs)
		}(w)
	}
	wg.Wait()

	sc.printReport()
	log.Info().Msg("simulation complete")
}
