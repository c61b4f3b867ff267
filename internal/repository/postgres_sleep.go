package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mhealth-data/internal/domain"

	"github.com/lib/pq"
)

// PostgresSleepRepository 睡眠记录 Repository 实现（sleep_records 表）
type PostgresSleepRepository struct {
	db *sql.DB
}

// NewPostgresSleepRepository 创建睡眠记录 Repository
func NewPostgresSleepRepository(db *sql.DB) *PostgresSleepRepository {
	return &PostgresSleepRepository{db: db}
}

// 确保实现了接口
var _ SleepRepository = (*PostgresSleepRepository)(nil)

// uniqueViolation PostgreSQL 唯一约束冲突错误码
const uniqueViolation = "23505"

const sleepColumns = `
	sleep_id::text,
	patient_id::text,
	start_time,
	end_time,
	duration,
	sleep_type,
	pattern,
	awakenings,
	night_awakenings
`

// CheckExist 按 (patient_id, start_time) 判断记录是否已存在
func (r *PostgresSleepRepository) CheckExist(ctx context.Context, rec *domain.SleepRecord) (bool, error) {
	start, err := domain.ParseTimestamp(rec.StartTime)
	if err != nil {
		return false, &domain.RepositoryError{Message: "invalid start_time for existence check", Err: err}
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM sleep_records
			WHERE patient_id = $1::uuid AND start_time = $2
		)`,
		rec.PatientID, start.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, &domain.RepositoryError{Message: "failed to check sleep record existence", Err: err}
	}
	return exists, nil
}

// Create 持久化新记录；唯一约束冲突（23505）映射为 ConflictError
func (r *PostgresSleepRepository) Create(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	start, end, err := parseRecordTimes(rec)
	if err != nil {
		return nil, err
	}
	pattern, awakenings, nightAwakenings, err := marshalRecordJSON(rec)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sleep_records (
			sleep_id, patient_id, start_time, end_time, duration, sleep_type,
			pattern, awakenings, night_awakenings
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.PatientID, start.UTC(), end.UTC(), derefDuration(rec.Duration),
		string(rec.Type), pattern, awakenings, nightAwakenings,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, &domain.ConflictError{
				Message: "A registration with the same unique data already exists!",
			}
		}
		return nil, &domain.RepositoryError{Message: "failed to create sleep record", Err: err}
	}

	return r.GetByID(ctx, rec.PatientID, rec.ID)
}

// Update 整体更新记录；记录不存在时返回 (nil, nil)
func (r *PostgresSleepRepository) Update(ctx context.Context, rec *domain.SleepRecord) (*domain.SleepRecord, error) {
	start, end, err := parseRecordTimes(rec)
	if err != nil {
		return nil, err
	}
	pattern, awakenings, nightAwakenings, err := marshalRecordJSON(rec)
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE sleep_records SET
			start_time = $3,
			end_time = $4,
			duration = $5,
			sleep_type = $6,
			pattern = $7,
			awakenings = $8,
			night_awakenings = $9,
			updated_at = NOW()
		WHERE patient_id = $1::uuid AND sleep_id = $2::uuid`,
		rec.PatientID, rec.ID, start.UTC(), end.UTC(), derefDuration(rec.Duration),
		string(rec.Type), pattern, awakenings, nightAwakenings,
	)
	if err != nil {
		return nil, &domain.RepositoryError{Message: "failed to update sleep record", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, &domain.RepositoryError{Message: "failed to update sleep record", Err: err}
	}
	if affected == 0 {
		return nil, nil // 记录不存在
	}

	return r.GetByID(ctx, rec.PatientID, rec.ID)
}

// GetByID 按患者和记录 ID 查询；不存在时返回 (nil, nil)
func (r *PostgresSleepRepository) GetByID(ctx context.Context, patientID, sleepID string) (*domain.SleepRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sleepColumns+`
		 FROM sleep_records
		 WHERE patient_id = $1::uuid AND sleep_id = $2::uuid`,
		patientID, sleepID,
	)
	rec, err := scanSleepRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &domain.RepositoryError{Message: "failed to get sleep record", Err: err}
	}
	return rec, nil
}

// Find 按查询条件返回记录列表
func (r *PostgresSleepRepository) Find(ctx context.Context, q SleepQuery) ([]*domain.SleepRecord, error) {
	q.Normalize()
	where, args := buildSleepWhere(q)

	order := "ASC"
	if q.SortDesc {
		order = "DESC"
	}
	args = append(args, q.Size, (q.Page-1)*q.Size)
	query := fmt.Sprintf(
		`SELECT %s FROM sleep_records %s ORDER BY start_time %s LIMIT $%d OFFSET $%d`,
		sleepColumns, where, order, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.RepositoryError{Message: "failed to find sleep records", Err: err}
	}
	defer rows.Close()

	records := []*domain.SleepRecord{}
	for rows.Next() {
		rec, err := scanSleepRecord(rows)
		if err != nil {
			return nil, &domain.RepositoryError{Message: "failed to scan sleep record", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Message: "failed to iterate sleep records", Err: err}
	}
	return records, nil
}

// Count 按查询条件返回记录总数（忽略分页）
func (r *PostgresSleepRepository) Count(ctx context.Context, q SleepQuery) (int, error) {
	where, args := buildSleepWhere(q)

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sleep_records `+where, args...).Scan(&total)
	if err != nil {
		return 0, &domain.RepositoryError{Message: "failed to count sleep records", Err: err}
	}
	return total, nil
}

// Delete 删除记录；返回是否实际删除
func (r *PostgresSleepRepository) Delete(ctx context.Context, patientID, sleepID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sleep_records WHERE patient_id = $1::uuid AND sleep_id = $2::uuid`,
		patientID, sleepID,
	)
	if err != nil {
		return false, &domain.RepositoryError{Message: "failed to delete sleep record", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &domain.RepositoryError{Message: "failed to delete sleep record", Err: err}
	}
	return affected > 0, nil
}

// buildSleepWhere 构造 WHERE 子句（patient_id 必填，时间范围可选）
func buildSleepWhere(q SleepQuery) (string, []any) {
	where := `WHERE patient_id = $1::uuid`
	args := []any{q.PatientID}
	if q.StartDate != nil {
		args = append(args, q.StartDate.UTC())
		where += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if q.EndDate != nil {
		args = append(args, q.EndDate.UTC())
		where += fmt.Sprintf(" AND start_time <= $%d", len(args))
	}
	return where, args
}

// rowScanner database/sql 的 Row 与 Rows 共同的 Scan 接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSleepRecord 扫描单条睡眠记录（pattern/awakenings 存储为 JSONB）
func scanSleepRecord(row rowScanner) (*domain.SleepRecord, error) {
	var rec domain.SleepRecord
	var start, end time.Time
	var duration int64
	var sleepType string
	var pattern, awakenings, nightAwakenings []byte

	err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&start,
		&end,
		&duration,
		&sleepType,
		&pattern,
		&awakenings,
		&nightAwakenings,
	)
	if err != nil {
		return nil, err
	}

	rec.StartTime = start.UTC().Format(domain.TimestampLayout)
	rec.EndTime = end.UTC().Format(domain.TimestampLayout)
	rec.Duration = &duration
	rec.Type = domain.SleepType(sleepType)

	if len(pattern) > 0 {
		rec.Pattern = &domain.SleepPattern{}
		if err := json.Unmarshal(pattern, rec.Pattern); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pattern: %w", err)
		}
	}
	if len(awakenings) > 0 {
		if err := json.Unmarshal(awakenings, &rec.Awakenings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal awakenings: %w", err)
		}
	}
	if len(nightAwakenings) > 0 {
		if err := json.Unmarshal(nightAwakenings, &rec.NightAwakenings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal night_awakenings: %w", err)
		}
	}

	return &rec, nil
}

// parseRecordTimes 解析记录的起止时间（写库前；记录已通过校验）
func parseRecordTimes(rec *domain.SleepRecord) (time.Time, time.Time, error) {
	start, err := domain.ParseTimestamp(rec.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.RepositoryError{Message: "invalid start_time", Err: err}
	}
	end, err := domain.ParseTimestamp(rec.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.RepositoryError{Message: "invalid end_time", Err: err}
	}
	return start, end, nil
}

// marshalRecordJSON 序列化 JSONB 字段；awakenings 未设置时写入 NULL
func marshalRecordJSON(rec *domain.SleepRecord) ([]byte, any, any, error) {
	pattern, err := json.Marshal(rec.Pattern)
	if err != nil {
		return nil, nil, nil, &domain.RepositoryError{Message: "failed to marshal pattern", Err: err}
	}
	var awakenings any
	if rec.Awakenings != nil {
		b, err := json.Marshal(rec.Awakenings)
		if err != nil {
			return nil, nil, nil, &domain.RepositoryError{Message: "failed to marshal awakenings", Err: err}
		}
		awakenings = b
	}
	var nightAwakenings any
	if rec.NightAwakenings != nil {
		b, err := json.Marshal(rec.NightAwakenings)
		if err != nil {
			return nil, nil, nil, &domain.RepositoryError{Message: "failed to marshal night_awakenings", Err: err}
		}
		nightAwakenings = b
	}
	return pattern, awakenings, nightAwakenings, nil
}

func derefDuration(d *int64) int64 {
	if d == nil {
		return 0
	}
	return *d
}
