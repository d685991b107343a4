package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/config"
)

const (
	movers = 50
	rounds = 5
)

// Drags the first card of the orders board within its own column from many
// clients at once, all holding the same version. Each round exactly one
// mover must win and the rest must be told their view is stale.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect grpc: %v", err)
	}
	defer conn.Close()
	client := handler.NewBoardClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	passed := 0
	for round := 1; round <= rounds; round++ {
		b, err := client.GetBoard(ctx, &handler.GetBoardRequest{Kind: "orders"})
		if err != nil {
			log.Fatalf("failed to load board: %v", err)
		}
		card, size, ok := firstCard(b)
		if !ok {
			log.Fatalf("orders board is empty, place an order first")
		}

		var won, stale, failed atomic.Int32
		var wg sync.WaitGroup
		start := time.Now()

		for i := 0; i < movers; i++ {
			wg.Add(1)
			go func(mover int) {
				defer wg.Done()
				_, err := client.MoveCard(ctx, &handler.MoveCardRequest{
					Kind:            "orders",
					ID:              card.ID,
					ExpectedVersion: card.Version,
					ToStatus:        card.Status,
					ToIndex:         mover % size,
					Actor:           fmt.Sprintf("stress-%d", mover),
				})
				switch status.Code(err) {
				case codes.OK:
					won.Add(1)
				case codes.Aborted:
					stale.Add(1)
				default:
					failed.Add(1)
					log.Printf("mover %d: %v", mover, err)
				}
			}(i)
		}
		wg.Wait()

		fmt.Printf("round %d: card=%s version=%d won=%d stale=%d failed=%d in %v\n",
			round, card.ID, card.Version, won.Load(), stale.Load(), failed.Load(), time.Since(start))
		if won.Load() == 1 && stale.Load() == movers-1 {
			passed++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Movers per round: %d\n", movers)
	fmt.Printf("Rounds passed:    %d/%d\n", passed, rounds)
	fmt.Println("==========================================")
	if passed == rounds {
		fmt.Println("PASS: exactly one move won per version")
	} else {
		fmt.Println("FAIL: expected exactly one winner per round")
	}
}

func firstCard(b *handler.BoardReply) (handler.CardMessage, int, bool) {
	for _, col := range b.Columns {
		if len(col.Cards) > 0 {
			return col.Cards[0], len(col.Cards), true
		}
	}
	return handler.CardMessage{}, 0, false
}
