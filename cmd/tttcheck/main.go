package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/park285/ttt-rooms/internal/tttclient"
	"github.com/park285/ttt-rooms/pkg/tttdto"
)

func main() {
	baseURL := flag.String("url", os.Getenv("TTT_BASE_URL"), "server base URL, e.g. http://localhost:1338")
	public := flag.Bool("public", true, "request a public room")
	play := flag.Bool("play", false, "join with a second connection and play one game")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("TTT_BASE_URL or -url is required")
	}

	client := tttclient.NewClient(*baseURL, tttclient.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		log.Fatalf("/health error: %v", err)
	}
	log.Printf("/health ok")

	tk, created, err := client.RequestRoom(ctx, *public)
	if err != nil {
		log.Fatalf("/ttt/api/join error: %v", err)
	}
	log.Printf("room %s public=%v created=%v", tk.RoomID, tk.IsPublic, created)

	a := join(ctx, client, tk.RoomID, "a")
	defer a.Close()
	if !*play {
		return
	}
	b := join(ctx, client, tk.RoomID, "b")
	defer b.Close()

	var started tttdto.GameStarted
	if _, err := a.Expect(ctx, tttdto.EventGameStarted, &started); err != nil {
		log.Fatalf("game_started: %v", err)
	}

	// x takes the top row while o answers in the middle row.
	for i, field := range []int{1, 4, 2, 5, 3} {
		c := a
		if i%2 == 1 {
			c = b
		}
		if err := c.Move(ctx, tk.RoomID, field); err != nil {
			log.Fatalf("move %d: %v", field, err)
		}
		var ack tttdto.Ack
		if _, err := c.Expect(ctx, tttdto.EventSuccess, &ack); err != nil {
			log.Fatalf("move %d ack: %v", field, err)
		}
	}
	var ended tttdto.GameEnded
	if _, err := a.Expect(ctx, tttdto.EventGameEnded, &ended); err != nil {
		log.Fatalf("game_ended: %v", err)
	}
	log.Printf("game over winner=%q line=%v", ended.Winner, ended.WinningLine)

	st, err := client.RoomState(ctx, tk.RoomID)
	if err != nil {
		log.Fatalf("room state: %v", err)
	}
	log.Printf("stats wins x=%d o=%d matches=%d", st.Stats.Wins.X, st.Stats.Wins.O, st.Stats.Matches)
}

func join(ctx context.Context, client *tttclient.Client, roomID, name string) *tttclient.Conn {
	conn, err := tttclient.Dial(ctx, client.WebsocketURL())
	if err != nil {
		log.Fatalf("ws %s dial: %v", name, err)
	}
	if err := conn.Join(ctx, roomID); err != nil {
		log.Fatalf("ws %s join: %v", name, err)
	}
	var pa tttdto.PlayerAssigned
	skipped, err := conn.Expect(ctx, tttdto.EventPlayerAssigned, &pa)
	if err != nil {
		for _, env := range skipped {
			log.Printf("ws %s got %s %s", name, env.Event, env.Data)
		}
		log.Fatalf("ws %s player_assigned: %v", name, err)
	}
	log.Printf("ws %s playing %s", name, pa.Symbol)
	return conn
}
