package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bourse/internal/server"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	brokerIDStr := flag.String("broker", "", "Broker UUID (required for most actions)")
	action := flag.String("action", "place", "Action: ['place', 'cancel', 'get', 'book', 'price', 'balance', 'register']")

	symbol := flag.String("symbol", "AAPL", "Symbol")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.Int64("price", 100, "Limit price, in integer cents")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	validFor := flag.Duration("valid-for", time.Hour, "How long a limit order should rest")

	orderIDStr := flag.String("order", "", "Order UUID (required for 'cancel' and a specific 'get')")
	depth := flag.Int("depth", 10, "Book depth for 'book'")
	window := flag.Int("window", 50, "Trade window for 'price'")

	name := flag.String("name", "", "Broker display name (for 'register')")
	webhook := flag.String("webhook", "", "Webhook URL (for 'register')")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	var brokerID uuid.UUID
	if *brokerIDStr != "" {
		brokerID, err = uuid.Parse(*brokerIDStr)
		if err != nil {
			log.Fatalf("invalid -broker: %v", err)
		}
	}

	enc := json.NewEncoder(conn)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)

	roundTrip := func(req server.Request) server.Response {
		if err := enc.Encode(req); err != nil {
			log.Fatalf("write request: %v", err)
		}
		if !scanner.Scan() {
			log.Fatalf("no response from server: %v", scanner.Err())
		}
		var resp server.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Fatalf("malformed response: %v", err)
		}
		return resp
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			req := server.Request{
				Op:       server.OpSubmitOrder,
				BrokerID: brokerID,
				Side:     strings.ToLower(*sideStr),
				Type:     strings.ToLower(*typeStr),
				Symbol:   *symbol,
				Quantity: qty,
			}
			if strings.ToLower(*typeStr) == "limit" {
				req.Price = price
				until := time.Now().Add(*validFor)
				req.ValidUntil = &until
			}
			resp := roundTrip(req)
			if resp.Error != "" {
				fmt.Printf("place failed (qty %d): %s\n", qty, resp.Error)
				continue
			}
			fmt.Printf("placed order %s, %d immediate trade(s)\n", resp.OrderID, len(resp.Trades))
		}

	case "cancel":
		orderID, err := uuid.Parse(*orderIDStr)
		if err != nil {
			log.Fatalf("invalid -order: %v", err)
		}
		roundTrip(server.Request{Op: server.OpCancelOrder, BrokerID: brokerID, OrderID: orderID})
		fmt.Println("cancel request sent")

	case "get":
		orderID, err := uuid.Parse(*orderIDStr)
		if err != nil {
			log.Fatalf("invalid -order: %v", err)
		}
		resp := roundTrip(server.Request{Op: server.OpGetOrder, BrokerID: brokerID, OrderID: orderID})
		printResponse(resp)

	case "book":
		resp := roundTrip(server.Request{Op: server.OpGetBook, Symbol: *symbol, Depth: *depth})
		printResponse(resp)

	case "price":
		resp := roundTrip(server.Request{Op: server.OpGetPrice, Symbol: *symbol, Window: *window})
		printResponse(resp)

	case "balance":
		resp := roundTrip(server.Request{Op: server.OpGetBalance, BrokerID: brokerID})
		printResponse(resp)

	case "register":
		resp := roundTrip(server.Request{Op: server.OpRegisterBroker, Name: *name, WebhookURL: *webhook})
		if resp.Error != "" {
			log.Fatalf("register failed: %s", resp.Error)
		}
		fmt.Printf("registered broker %s\napi_key: %s (save this, it is shown once)\n", resp.OrderID, resp.APIKey)

	default:
		log.Fatalf("unknown action: %s", *action)
	}
}

func parseQuantities(input string) []uint64 {
	var result []uint64
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		val, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			log.Printf("skipping invalid quantity %q", p)
			continue
		}
		result = append(result, val)
	}
	return result
}

func printResponse(resp server.Response) {
	if resp.Error != "" {
		fmt.Println("error:", resp.Error)
		return
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
}
