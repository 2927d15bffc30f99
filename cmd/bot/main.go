package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"paddlers.io/internal/protocol"
)

var buildingTypes = []string{"blue_flowers", "red_flowers", "tree", "bundling_station", "saw_mill"}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		interval = flag.Duration("interval", 20*time.Second, "time between purchases")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := &client{conn: conn, logger: logger}
	var res *protocol.Result
	for attempt := 0; attempt < 20 && res == nil; attempt++ {
		res, err = c.send(protocol.TypeCreatePlayer, protocol.CreatePlayer{
			Name:     *name,
			Position: protocol.Position{X: rand.IntN(1000), Y: rand.IntN(1000)},
		})
		if err != nil {
			logger.Fatalf("create player: %v", err)
		}
	}
	if res == nil {
		logger.Fatalf("no free map position found")
	}
	logger.Printf("player=%d village=%d", res.PlayerID, res.VillageID)
	playerID, villageID := res.PlayerID, res.VillageID

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	started := time.Now()
	tick := time.NewTicker(*interval)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			_, _ = c.send(protocol.TypeSubmitStatistics, protocol.SubmitStatistics{
				PlayerID:          playerID,
				SessionDurationMs: time.Since(started).Milliseconds(),
				FPS:               60,
			})
			return
		case <-tick.C:
		}
		typ := buildingTypes[rand.IntN(len(buildingTypes))]
		if _, err := c.send(protocol.TypePurchaseBuilding, protocol.PurchaseBuilding{
			VillageID:    villageID,
			BuildingType: typ,
			Position:     protocol.Position{X: rand.IntN(23), Y: rand.IntN(13)},
		}); err != nil {
			logger.Printf("connection lost: %v", err)
			return
		}
	}
}

type client struct {
	conn   *websocket.Conn
	logger *log.Logger
	seq    int
}

// send issues one command and waits for its RESULT. A rejected command is
// logged and returns a nil result.
func (c *client) send(typ string, payload any) (*protocol.Result, error) {
	c.seq++
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req := protocol.Request{Type: typ, RequestID: fmt.Sprintf("bot-%d", c.seq), Payload: raw}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, err
	}
	var resp protocol.Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		c.logger.Printf("%s %s: %s %s", resp.RequestID, typ, resp.Code, resp.Message)
		return nil, nil
	}
	return resp.Result, nil
}
