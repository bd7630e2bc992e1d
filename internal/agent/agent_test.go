package agent

import (
	"testing"
)

func TestValidateReadOnlyQuery(t *testing.T) {
	t.Run("allows valid SELECT queries", func(t *testing.T) {
		valid := []string{
			"SELECT * FROM qr_scans",
			"select * from qr_scans",
			"SELECT COUNT(*) FROM qr_scans WHERE qrcode_id = 1",
			"SELECT country, COUNT(*) FROM qr_scans GROUP BY country",
			"SELECT * FROM qr_scans WHERE scanned_at >= datetime('now', '-7 days')",
			"SELECT * FROM qrcodes WHERE content = 'https://example.com/delete-account'",
			"SELECT * FROM qrcodes WHERE content LIKE '%update%'",
			"WITH recent AS (SELECT * FROM qr_scans) SELECT COUNT(*) FROM recent",
		}

		for _, q := range valid {
			if err := ValidateReadOnlyQuery(q); err != nil {
				t.Errorf("expected valid query %q to pass, got error: %v", q, err)
			}
		}
	})

	t.Run("blocks non-SELECT queries", func(t *testing.T) {
		invalid := []string{
			"INSERT INTO qr_scans VALUES (1, 2, 3)",
			"UPDATE qrcodes SET scan_count = 0",
			"DELETE FROM qr_scans",
			"DROP TABLE qr_scans",
			"CREATE TABLE evil (id INT)",
			"ALTER TABLE qrcodes ADD COLUMN evil TEXT",
			"TRUNCATE qr_scans",
		}

		for _, q := range invalid {
			if err := ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected invalid query %q to fail", q)
			}
		}
	})

	t.Run("blocks queries with comments", func(t *testing.T) {
		invalid := []string{
			"SELECT * FROM qr_scans /* comment */",
			"SELECT * FROM qr_scans -- comment",
			"SELECT * FROM qr_scans; DEL/**/ETE FROM users",
		}

		for _, q := range invalid {
			if err := ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected query with comments %q to fail", q)
			}
		}
	})

	t.Run("blocks multiple statements", func(t *testing.T) {
		invalid := []string{
			"SELECT 1; SELECT 2;",
			"SELECT * FROM qr_scans; SELECT * FROM users;",
			"SELECT * FROM qr_scans; DELETE FROM qr_scans;",
		}

		for _, q := range invalid {
			if err := ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected multiple statement query %q to fail", q)
			}
		}
	})

	t.Run("blocks dangerous keywords even with whitespace tricks", func(t *testing.T) {
		invalid := []string{
			"SELECT * FROM qr_scans;\nDELETE FROM users",
			"SELECT * FROM qr_scans;\tDROP TABLE users",
			"SELECT * FROM qr_scans;  DELETE   FROM users",
		}

		for _, q := range invalid {
			if err := ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected whitespace-obfuscated query %q to fail", q)
			}
		}
	})

	t.Run("blocks SQLite dangerous functions", func(t *testing.T) {
		invalid := []string{
			"SELECT load_extension('evil.so')",
			"SELECT writefile('/tmp/evil', 'data')",
			"SELECT readfile('/etc/passwd')",
			"PRAGMA table_info(qr_scans)",
			"ATTACH DATABASE '/tmp/evil.db' AS evil",
		}

		for _, q := range invalid {
			if err := ValidateReadOnlyQuery(q); err == nil {
				t.Errorf("expected SQLite-specific dangerous query %q to fail", q)
			}
		}
	})
}
