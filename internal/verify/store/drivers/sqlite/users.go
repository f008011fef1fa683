package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) GetUserByID(ctx context.Context, tenancyID, userID string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenancy_id, primary_email, display_name, password_hash, totp_secret, created_at, updated_at
		FROM users
		WHERE tenancy_id = ? AND id = ?`,
		tenancyID, userID,
	)

	var (
		u        domain.User
		pwHash   sql.NullString
		totpsSec sql.NullString
	)
	if err := row.Scan(&u.ID, &u.TenancyID, &u.PrimaryEmail, &u.DisplayName, &pwHash, &totpsSec, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordHash = mapNullStringPtr(pwHash)
	u.TOTPSecret = mapNullStringPtr(totpsSec)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, tenancy_id, primary_email, display_name, password_hash, totp_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenancyID, u.PrimaryEmail, u.DisplayName,
		mapOptionalString(u.PasswordHash), mapOptionalString(u.TOTPSecret),
		u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, tenancyID, userID string, newHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ?
		WHERE tenancy_id = ? AND id = ?`,
		newHash, time.Now().UTC(), tenancyID, userID,
	)
	return err
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, tenancyID, userID string, secret *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = ?, updated_at = ?
		WHERE tenancy_id = ? AND id = ?`,
		mapOptionalString(secret), time.Now().UTC(), tenancyID, userID,
	)
	return err
}

func (r *usersRepo) DeleteUser(ctx context.Context, tenancyID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM users WHERE tenancy_id = ? AND id = ?`,
		tenancyID, userID,
	)
	return err
}
