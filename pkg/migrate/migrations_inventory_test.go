package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/tixmarket-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEscrowHoldsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_escrow_holds.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS escrow_holds",
		"CHECK (total_amount_cents > 0)",
		"CHECK (platform_fee_cents + seller_amount_cents = total_amount_cents)",
		"status escrow_status NOT NULL DEFAULT 'pending'",
		"escrow_holds_status_created_at_idx",
		"DROP TABLE IF EXISTS escrow_holds",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFundingAttemptsMigrationIsReversible(t *testing.T) {
	content := readMigration(t, "*_add_escrow_hold_funding_attempts.sql")

	for _, sub := range []string{
		"ADD COLUMN IF NOT EXISTS funding_attempts integer NOT NULL DEFAULT 0",
		"CHECK (funding_attempts >= 0)",
		"DROP COLUMN IF EXISTS funding_attempts",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutTransfersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_payout_transfers.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payout_transfers",
		"CHECK (net_cents > 0)",
		"CHECK (gross_cents = platform_fee_cents + processor_fee_cents + net_cents)",
		"payout_transfers_provider_transfer_id_key",
		"DROP TABLE IF EXISTS payout_transfers",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEnumMigrationMatchesStatuses(t *testing.T) {
	content := readMigration(t, "*_create_enums.sql")

	for _, sub := range []string{
		"CREATE TYPE escrow_status AS ENUM ('pending', 'held', 'released')",
		"CREATE TYPE payout_outcome AS ENUM ('confirmed_payout', 'pending_manual_payout')",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
