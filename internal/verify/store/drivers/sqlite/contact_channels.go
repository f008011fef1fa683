package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

type contactChannelsRepo struct {
	db dbtx
}

func (r *contactChannelsRepo) CreateContactChannel(ctx context.Context, ch domain.ContactChannel) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_channels (id, tenancy_id, user_id, type, value, is_verified, used_for_auth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.TenancyID, ch.UserID, string(ch.Type), ch.Value,
		ch.IsVerified, ch.UsedForAuth, ch.CreatedAt, ch.UpdatedAt,
	)
	return err
}

func (r *contactChannelsRepo) GetAuthContactChannel(
	ctx context.Context,
	tenancyID string,
	typ domain.ContactChannelType,
	value string,
) (domain.ContactChannel, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenancy_id, user_id, type, value, is_verified, used_for_auth, created_at, updated_at
		FROM contact_channels
		WHERE tenancy_id = ? AND type = ? AND value = ? AND used_for_auth = 1`,
		tenancyID, string(typ), value,
	)

	var ch domain.ContactChannel
	if err := row.Scan(&ch.ID, &ch.TenancyID, &ch.UserID, &ch.Type, &ch.Value,
		&ch.IsVerified, &ch.UsedForAuth, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return domain.ContactChannel{}, mapNotFound(err)
	}
	return ch, nil
}

func (r *contactChannelsRepo) ListUserContactChannels(ctx context.Context, tenancyID, userID string) ([]domain.ContactChannel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenancy_id, user_id, type, value, is_verified, used_for_auth, created_at, updated_at
		FROM contact_channels
		WHERE tenancy_id = ? AND user_id = ?
		ORDER BY created_at`,
		tenancyID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContactChannel
	for rows.Next() {
		var ch domain.ContactChannel
		if err := rows.Scan(&ch.ID, &ch.TenancyID, &ch.UserID, &ch.Type, &ch.Value,
			&ch.IsVerified, &ch.UsedForAuth, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (r *contactChannelsRepo) MarkContactChannelVerified(ctx context.Context, tenancyID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contact_channels SET is_verified = 1, updated_at = ?
		WHERE tenancy_id = ? AND id = ?`,
		time.Now().UTC(), tenancyID, channelID,
	)
	return err
}
