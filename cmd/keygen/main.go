package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/protobridge/internal/auth"
	"github.com/af-corp/protobridge/internal/types"
)

func main() {
	client := flag.String("client", "", "client ID (required)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	protocols := flag.String("protocols", "", "comma-separated allowed protocols, name or name@version (empty = all)")
	rpm := flag.Int("rpm", 0, "requests per minute limit (0 = server default)")
	daily := flag.Int("daily", 0, "daily conversion quota (0 = server default)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *client == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -client and -name are required")
		os.Exit(1)
	}

	allowed, err := parseProtocols(*protocols)
	if err != nil {
		log.Fatalf("invalid protocols: %v", err)
	}

	// Generate key
	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	// Parse expiry
	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "protobridge")
		pass := envOrDefault("DB_PASSWORD", "protobridge-dev")
		dbname := envOrDefault("DB_NAME", "protobridge")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	allowedJSON, _ := json.Marshal(allowed)

	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, client_id, name, allowed_protocols, rpm_limit, daily_conversion_limit, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, keyHash, keyPrefix, *client, *name, allowedJSON, nilIfZero(*rpm), nilIfZero(*daily), expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== protobridge API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:      %s\n", keyID)
	fmt.Printf("  Key Prefix:  %s\n", keyPrefix)
	fmt.Printf("  Client:      %s\n", *client)
	if len(allowed) > 0 {
		fmt.Printf("  Protocols:   %s\n", strings.Join(allowed, ", "))
	} else {
		fmt.Printf("  Protocols:   all\n")
	}
	if *rpm > 0 {
		fmt.Printf("  RPM:         %d\n", *rpm)
	}
	if *daily > 0 {
		fmt.Printf("  Daily quota: %d\n", *daily)
	}
	fmt.Printf("  Expires:     %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("=====================================")
}

// parseProtocols splits a comma-separated list of "name" or "name@version"
// entries.
func parseProtocols(s string) ([]string, error) {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "@") {
			if _, err := types.ParseDescriptor(p); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
