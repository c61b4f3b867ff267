package main

import (
	"fmt"
	"os"

	"mhealth-data/internal/config"
	"mhealth-data/internal/database"

	_ "github.com/lib/pq"
)

// sleep_records 表：pattern 和推断产物存 JSONB，(patient_id, start_time) 唯一约束是
// 重复提交的权威兜底（应用层 CheckExist 只是预检）
const createTableSQL = `
CREATE TABLE IF NOT EXISTS sleep_records (
    sleep_id         UUID PRIMARY KEY,
    patient_id       UUID NOT NULL,
    start_time       TIMESTAMPTZ NOT NULL,
    end_time         TIMESTAMPTZ NOT NULL,
    duration         BIGINT NOT NULL,
    sleep_type       VARCHAR(10) NOT NULL,
    pattern          JSONB NOT NULL,
    awakenings       JSONB,
    night_awakenings JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_sleep_records_patient_start UNIQUE (patient_id, start_time)
);

CREATE INDEX IF NOT EXISTS idx_sleep_records_patient_start
    ON sleep_records (patient_id, start_time DESC);
`

func main() {
	cfg := config.Load()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.Exec(createTableSQL); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute SQL: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ sleep_records table created successfully!")
}
