package model

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found, expired, or blocked")
)

type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Password        string    `json:"-"`
	AuthProvider    string    `json:"auth_provider"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	EmailVerificationToken          sql.NullString `json:"-"`
	EmailVerificationTokenExpiresAt sql.NullTime   `json:"-"`
	PasswordResetToken              sql.NullString `json:"-"`
	PasswordResetTokenExpiresAt     sql.NullTime   `json:"-"`
}

type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

const userColumns = `id, username, email, password, auth_provider, is_email_verified,
	email_verification_token, email_verification_token_expires_at,
	password_reset_token, password_reset_token_expires_at,
	created_at, updated_at`

// CreateUser inserts a new user and fills in the generated ID.
func (u *User) CreateUser(db *sql.DB) error {
	query := `
	INSERT INTO users (username, email, password, auth_provider, is_email_verified,
		email_verification_token, email_verification_token_expires_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}

	res, err := stmt.Exec(
		u.Username,
		u.Email,
		u.Password,
		u.AuthProvider,
		u.IsEmailVerified,
		u.EmailVerificationToken,
		u.EmailVerificationTokenExpiresAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password,
		&user.AuthProvider,
		&user.IsEmailVerified,
		&user.EmailVerificationToken,
		&user.EmailVerificationTokenExpiresAt,
		&user.PasswordResetToken,
		&user.PasswordResetTokenExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by their username.
func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = ?`, userColumns)
	return scanUser(db.QueryRow(query, username))
}

// GetUserByEmail retrieves a user by their email address.
func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = ?`, userColumns)
	return scanUser(db.QueryRow(query, email))
}

// GetUserByID retrieves a user by their numeric ID.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = ?`, userColumns)
	return scanUser(db.QueryRow(query, id))
}

// GetUserByVerificationToken retrieves a user holding an unexpired email
// verification token.
func GetUserByVerificationToken(db *sql.DB, token string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE email_verification_token = ? AND email_verification_token_expires_at > ?`, userColumns)
	return scanUser(db.QueryRow(query, token, time.Now()))
}

// GetUserByPasswordResetToken retrieves a user holding an unexpired password
// reset token.
func GetUserByPasswordResetToken(db *sql.DB, token string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users
	WHERE password_reset_token = ? AND password_reset_token_expires_at > ?`, userColumns)
	return scanUser(db.QueryRow(query, token, time.Now()))
}

// MarkEmailVerified flags the user as verified and clears the token.
func MarkEmailVerified(db *sql.DB, userID int64) error {
	query := `
	UPDATE users
	SET is_email_verified = TRUE,
		email_verification_token = NULL,
		email_verification_token_expires_at = NULL,
		updated_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, time.Now(), userID)
	return err
}

// SetPasswordResetToken stores a reset token with its expiry on the user row.
func SetPasswordResetToken(db *sql.DB, userID int64, token string, expiresAt time.Time) error {
	query := `
	UPDATE users
	SET password_reset_token = ?,
		password_reset_token_expires_at = ?,
		updated_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, token, expiresAt, time.Now(), userID)
	return err
}

// UpdatePassword replaces the stored hash and clears any pending reset token.
func UpdatePassword(db *sql.DB, userID int64, hashedPassword string) error {
	query := `
	UPDATE users
	SET password = ?,
		password_reset_token = NULL,
		password_reset_token_expires_at = NULL,
		updated_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, hashedPassword, time.Now(), userID)
	return err
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, token, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetSessionByRefreshToken retrieves an active, non-blocked session by its
// refresh token.
func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, refreshToken, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// RotateSessionTokens swaps in a fresh access and refresh token pair. The
// old refresh token stops working as soon as this commits.
func RotateSessionTokens(db *sql.DB, sessionID int64, token, refreshToken string, expiresAt time.Time) error {
	query := `
	UPDATE sessions
	SET token = ?, refresh_token = ?, expires_at = ?
	WHERE id = ?`
	_, err := db.Exec(query, token, refreshToken, expiresAt, sessionID)
	return err
}

// DeleteSessionByToken removes a session based on the access token. Missing
// rows are not an error: the session may have expired already.
func DeleteSessionByToken(db *sql.DB, token string) error {
	query := `DELETE FROM sessions WHERE token = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(token)
	return err
}

// DeleteSessionsByUserID removes every session belonging to a user. Used
// after a password reset so stale credentials stop working everywhere.
func DeleteSessionsByUserID(db *sql.DB, userID int64) error {
	query := `DELETE FROM sessions WHERE user_id = ?`
	_, err := db.Exec(query, userID)
	return err
}
