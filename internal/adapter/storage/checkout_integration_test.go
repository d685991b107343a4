package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/migrations"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := migrations.Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (e *testEnv) deps() service.Deps {
	return service.Deps{
		Cache:         e.cache,
		Catalog:       e.db,
		Orders:        e.db,
		Events:        e.db,
		Registrations: e.db,
		Reviews:       e.db,
		Pages:         e.db,
		Log:           logger.Discard(),
		BoardCacheTTL: time.Minute,
	}
}

func (e *testEnv) product(t *testing.T, stock int) domain.Product {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	p := domain.Product{ID: uuid.NewString(), SKU: "it-" + uuid.NewString()[:12], Name: "Integration mug", PriceCents: 1500, Stock: stock, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := e.db.CreateProduct(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := e.cache.SetStock(ctx, p.ID, stock); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	t.Cleanup(func() {
		e.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id IN (SELECT order_id FROM order_lines WHERE product_id = ?)`, p.ID)
		e.mysql.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, p.ID)
		e.redis.Del(ctx, "stock:"+p.ID)
	})
	return p
}

func order(productID string) service.PlaceOrderInput {
	return service.PlaceOrderInput{
		RequestID:     uuid.NewString(),
		CustomerName:  "Integration",
		CustomerEmail: "it@example.com",
		Items:         []service.OrderItem{{ProductID: productID, Quantity: 1}},
	}
}

func TestIntegration_FullCheckoutFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	initialStock := 10
	p := env.product(t, initialStock)

	svc := service.NewOrderService(env.deps(), 100)
	wg := service.NewPersister(env.deps()).Start(3, svc.GetOrderQueue())

	var successCount atomic.Int32
	var purchaseWg sync.WaitGroup
	for i := 0; i < 20; i++ {
		purchaseWg.Add(1)
		go func() {
			defer purchaseWg.Done()
			if _, err := svc.PlaceOrder(ctx, order(p.ID)); err == nil {
				successCount.Add(1)
			}
		}()
	}
	purchaseWg.Wait()

	svc.Close()
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful purchases, got %d", initialStock, successCount.Load())
	}

	redisStock, _ := env.redis.Get(ctx, "stock:"+p.ID).Int()
	if redisStock != 0 {
		t.Errorf("expected Redis stock 0, got %d", redisStock)
	}

	var orderCount int
	env.mysql.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_lines WHERE product_id = ?`, p.ID).Scan(&orderCount)
	if orderCount != initialStock {
		t.Errorf("expected %d orders in MySQL, got %d", initialStock, orderCount)
	}

	stored, _ := env.db.GetProduct(ctx, p.ID)
	if stored.Stock != 0 {
		t.Errorf("expected MySQL stock 0, got %d", stored.Stock)
	}
}

func TestIntegration_RollbackOnMySQLFailure(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	p := env.product(t, 5)
	// The cache believes there is stock the database does not have.
	env.db.SetStock(ctx, p.ID, 0)

	svc := service.NewOrderService(env.deps(), 100)
	wg := service.NewPersister(env.deps()).Start(1, svc.GetOrderQueue())

	if _, err := svc.PlaceOrder(ctx, order(p.ID)); err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	svc.Close()
	wg.Wait()

	redisStock, _ := env.redis.Get(ctx, "stock:"+p.ID).Int()
	if redisStock != 5 {
		t.Errorf("expected Redis stock 5 after rollback, got %d", redisStock)
	}
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	p := env.product(t, 10)

	svc := service.NewOrderService(env.deps(), 100)
	defer svc.Close()
	go func() {
		for range svc.GetOrderQueue() {
		}
	}()

	in := order(p.ID)
	if _, err := svc.PlaceOrder(ctx, in); err != nil {
		t.Fatalf("first order failed: %v", err)
	}
	if _, err := svc.PlaceOrder(ctx, in); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	stock, _ := env.redis.Get(ctx, "stock:"+p.ID).Int()
	if stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}

func TestIntegration_ConcurrentBoardMovesOneWinner(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	p := env.product(t, 5)

	svc := service.NewOrderService(env.deps(), 10)
	wg := service.NewPersister(env.deps()).Start(1, svc.GetOrderQueue())
	placed, err := svc.PlaceOrder(ctx, order(p.ID))
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	svc.Close()
	wg.Wait()

	var wins, conflicts atomic.Int32
	var moves sync.WaitGroup
	for _, to := range []string{"paid", "cancelled", "paid", "cancelled", "paid"} {
		moves.Add(1)
		go func(to string) {
			defer moves.Done()
			_, err := svc.MoveOrder(ctx, service.MoveInput{ID: placed.ID, ExpectedVersion: placed.Version, ToStatus: to})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(to)
	}
	moves.Wait()

	if wins.Load() != 1 || conflicts.Load() != 4 {
		t.Errorf("expected 1 winner and 4 conflicts, got %d and %d", wins.Load(), conflicts.Load())
	}
}
