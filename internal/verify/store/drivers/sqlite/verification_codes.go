package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

type verificationCodesRepo struct {
	db dbtx
}

func (r *verificationCodesRepo) InsertCode(ctx context.Context, c domain.VerificationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_codes
			(id, code_hash, flow_type, tenancy_id, project_id, branch_id, data, method, callback_url, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CodeHash, string(c.FlowType), c.TenancyID, c.ProjectID, c.BranchID,
		string(c.Data), string(c.Method), mapOptionalString(c.CallbackURL),
		c.CreatedAt, c.ExpiresAt, mapOptionalTime(c.UsedAt),
	)
	return err
}

func (r *verificationCodesRepo) GetCodeByTypeAndHash(
	ctx context.Context,
	flowType domain.FlowType,
	codeHash string,
) (domain.VerificationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code_hash, flow_type, tenancy_id, project_id, branch_id, data, method, callback_url, created_at, expires_at, used_at
		FROM verification_codes
		WHERE flow_type = ? AND code_hash = ?`,
		string(flowType), codeHash,
	)

	var (
		c            domain.VerificationCode
		data, method string
		callbackURL  sql.NullString
		usedAt       sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CodeHash, &c.FlowType, &c.TenancyID, &c.ProjectID, &c.BranchID,
		&data, &method, &callbackURL, &c.CreatedAt, &c.ExpiresAt, &usedAt); err != nil {
		return domain.VerificationCode{}, mapNotFound(err)
	}
	c.Data = []byte(data)
	c.Method = []byte(method)
	c.CallbackURL = mapNullStringPtr(callbackURL)
	c.UsedAt = mapNullTimePtr(usedAt)
	return c, nil
}

// ConsumeCode performs a conditional update so that exactly one of any number
// of concurrent redeemers wins. The rows-affected count tells us whether this
// call was the winner.
func (r *verificationCodesRepo) ConsumeCode(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_codes SET used_at = ?
		WHERE id = ? AND used_at IS NULL`,
		usedAt, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *verificationCodesRepo) DeleteExpiredCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_codes WHERE expires_at < ?`,
		time.Now().UTC(),
	)
	return err
}
