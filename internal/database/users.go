package database

import (
	"chatcore/internal/models"
	"context"
)

func (q *Queries) InsertUser(ctx context.Context, u *models.User) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password, avatar, bio, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Username, u.Email, u.Password, u.Avatar, u.Bio, toMillis(u.CreatedAt))
	return err
}

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Avatar, &u.Bio, &createdAt)
	if err != nil {
		return models.User{}, notFound(err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

const userColumns = "id, username, email, password, avatar, bio, created_at"

func (q *Queries) UserByID(ctx context.Context, id int64) (models.User, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (q *Queries) UserByEmail(ctx context.Context, email string) (models.User, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

func (q *Queries) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

func (q *Queries) UsernameOrEmailTaken(ctx context.Context, username string, email string) (usernameTaken bool, emailTaken bool, err error) {
	err = q.q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = ?), EXISTS(SELECT 1 FROM users WHERE email = ?)", username, email).
		Scan(&usernameTaken, &emailTaken)
	return usernameTaken, emailTaken, err
}

func (q *Queries) UpdateUserProfile(ctx context.Context, id int64, avatar string, bio string) error {
	result, err := q.q.ExecContext(ctx, "UPDATE users SET avatar = ?, bio = ? WHERE id = ?", avatar, bio, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UserSummaries returns the public part of every user found, missing ids are left out.
func (q *Queries) UserSummaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	summaries := make(map[int64]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	rows, err := q.q.QueryContext(ctx, "SELECT id, username, avatar FROM users WHERE id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.Avatar); err != nil {
			return nil, err
		}
		summaries[s.ID] = s
	}
	return summaries, rows.Err()
}
