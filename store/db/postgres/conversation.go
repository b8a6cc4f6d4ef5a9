package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/ragchat/store"
)

func (d *DB) CreateConversationIfNotExists(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	// First write wins; concurrent inserts with the same id are absorbed
	// by ON CONFLICT DO NOTHING and the winning row is read back.
	stmt := `
		INSERT INTO conversation (id, session_id, user_id, start_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionID,
		create.UserID,
		create.StartTime,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}

	return d.getConversation(ctx, create.ID)
}

func (d *DB) getConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `
		SELECT id, session_id, user_id, topic, start_ts, end_ts
		FROM conversation
		WHERE id = $1
	`
	conversation := &store.Conversation{}
	if err := d.db.QueryRowContext(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.SessionID,
		&conversation.UserID,
		&conversation.Topic,
		&conversation.StartTime,
		&conversation.EndTime,
	); err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return conversation, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `
		SELECT id, session_id, user_id, topic, start_ts, end_ts
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY start_ts DESC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		conversation := &store.Conversation{}
		if err := rows.Scan(
			&conversation.ID,
			&conversation.SessionID,
			&conversation.UserID,
			&conversation.Topic,
			&conversation.StartTime,
			&conversation.EndTime,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}

	if update.Topic != nil {
		set, args = append(set, "topic = "+placeholder(len(args)+1)), append(args, *update.Topic)
	}
	if update.EndTime != nil {
		set, args = append(set, "end_ts = "+placeholder(len(args)+1)), append(args, *update.EndTime)
	}
	if len(set) == 0 {
		return d.getConversation(ctx, update.ID)
	}
	args = append(args, update.ID)

	stmt := `
		UPDATE conversation
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, session_id, user_id, topic, start_ts, end_ts
	`
	conversation := &store.Conversation{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&conversation.ID,
		&conversation.SessionID,
		&conversation.UserID,
		&conversation.Topic,
		&conversation.StartTime,
		&conversation.EndTime,
	); err != nil {
		return nil, errors.Wrap(err, "failed to update conversation")
	}
	return conversation, nil
}

func (d *DB) CreateInteraction(ctx context.Context, create *store.Interaction) (*store.Interaction, error) {
	stmt := `
		INSERT INTO interaction (conversation_id, user_id, user_content, bot_content, created_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationID,
		create.UserID,
		create.UserContent,
		create.BotContent,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create interaction")
	}
	return create, nil
}

func (d *DB) ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `
		SELECT id, conversation_id, user_id, user_content, bot_content, created_ts
		FROM interaction
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list interactions")
	}
	defer rows.Close()

	list := []*store.Interaction{}
	for rows.Next() {
		interaction := &store.Interaction{}
		if err := rows.Scan(
			&interaction.ID,
			&interaction.ConversationID,
			&interaction.UserID,
			&interaction.UserContent,
			&interaction.BotContent,
			&interaction.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan interaction")
		}
		list = append(list, interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
