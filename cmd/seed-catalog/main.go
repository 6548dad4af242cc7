// Command seed-catalog loads a gzipped CSV catalog into the database and
// seeds a staff API key. The CSV columns are:
//
//	product_id,product_name,variant_id,sku,variant_name,price,weight_kg,stock
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tokoku/commerce/internal/repository"
)

const insertWorkers = 4

type catalogRow struct {
	productID   string
	productName string
	variantID   string
	sku         string
	variantName string
	price       decimal.Decimal
	weightKg    decimal.Decimal
	stock       int
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.csv.gz", "path to gzipped catalog CSV")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or COMMERCE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COMMERCE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COMMERCE_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COMMERCE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, apiKeyPepper string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	f, err := os.Open(catalogFile)
	if err != nil {
		return errors.Wrap(err, "open catalog file")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer func() { _ = gz.Close() }()

	rows := make(chan catalogRow, 256)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		return parseCatalog(gctx, gz, rows)
	})

	var inserted int64
	counts := make(chan int, insertWorkers)
	for i := 0; i < insertWorkers; i++ {
		g.Go(func() error {
			n := 0
			for row := range rows {
				if err := upsertRow(gctx, pool, row); err != nil {
					return err
				}
				n++
			}
			counts <- n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	close(counts)
	for n := range counts {
		inserted += int64(n)
	}
	slog.Info("catalog seeded", "variants", inserted)

	if apiKey != "" {
		if err := seedAPIKey(ctx, pool, apiKey, apiKeyPepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
		slog.Info("staff API key seeded")
	}
	return nil
}

func parseCatalog(ctx context.Context, r io.Reader, out chan<- catalogRow) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 8

	// Skip the header.
	if _, err := cr.Read(); err != nil {
		return errors.Wrap(err, "read header")
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}

		price, err := decimal.NewFromString(rec[5])
		if err != nil {
			return errors.Wrapf(err, "line %d: price", line)
		}
		weight, err := decimal.NewFromString(rec[6])
		if err != nil {
			return errors.Wrapf(err, "line %d: weight", line)
		}
		stock, err := strconv.Atoi(rec[7])
		if err != nil || stock < 0 {
			return errors.Errorf("line %d: bad stock %q", line, rec[7])
		}

		row := catalogRow{
			productID:   rec[0],
			productName: rec[1],
			variantID:   rec[2],
			sku:         rec[3],
			variantName: rec[4],
			price:       price,
			weightKg:    weight,
			stock:       stock,
		}
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

const (
	upsertProductSQL = `INSERT INTO products (id, name, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, sku, name, price, weight_kg, stock_quantity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			weight_kg = EXCLUDED.weight_kg,
			stock_quantity = EXCLUDED.stock_quantity`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET scopes = EXCLUDED.scopes, active = TRUE`
)

func upsertRow(ctx context.Context, pool *pgxpool.Pool, row catalogRow) error {
	if _, err := pool.Exec(ctx, upsertProductSQL, row.productID, row.productName); err != nil {
		return errors.Wrapf(err, "product %s", row.productID)
	}
	if _, err := pool.Exec(ctx, upsertVariantSQL,
		row.variantID, row.productID, row.sku, row.variantName,
		row.price, row.weightKg, row.stock,
	); err != nil {
		return errors.Wrapf(err, "variant %s", row.variantID)
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	hash := hex.EncodeToString(mac.Sum(nil))

	scopes := []string{"orders:write", "pickup:verify", "inventory:write"}
	_, err := pool.Exec(ctx, upsertAPIKeySQL, uuid.New().String(), hash, "seeded-staff-key", scopes)
	return err
}
