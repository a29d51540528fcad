package postgres

// Schema creates the ledger tables. Entries are append-only: a trigger
// rejects UPDATE and DELETE on ledger_entries.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id             BIGSERIAL PRIMARY KEY,
	account_id     TEXT        NOT NULL,
	kind           TEXT        NOT NULL,
	amount         NUMERIC     NOT NULL CHECK (amount > 0),
	security_id    TEXT,
	quantity       NUMERIC,
	price          NUMERIC,
	description    TEXT,
	correlation_id TEXT,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_created ON ledger_entries (created_at, id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_correlation ON ledger_entries (correlation_id) WHERE correlation_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS account_balances (
	account_id TEXT PRIMARY KEY,
	balance    NUMERIC     NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS positions (
	account_id   TEXT        NOT NULL,
	security_id  TEXT        NOT NULL,
	quantity     NUMERIC     NOT NULL CHECK (quantity >= 0),
	average_cost NUMERIC     NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (account_id, security_id)
);

CREATE OR REPLACE FUNCTION ledger_entries_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger_entries is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS ledger_entries_no_update ON ledger_entries;
CREATE TRIGGER ledger_entries_no_update
	BEFORE UPDATE OR DELETE ON ledger_entries
	FOR EACH ROW EXECUTE FUNCTION ledger_entries_immutable();
`
