package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"messagely/internal/storage/zapadapter"
)

var (
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotExist    = errors.New("user does not exist")
	ErrMessageNotExist = errors.New("message does not exist")
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// NewStore sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func NewStore(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close closes underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates a user record with the provided opaque password hash
// and returns the stored record. join_at and last_login_at are both set to
// the creation time.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	s.logger.Debugf("Creating user (%s)", nu.Username)

	now := time.Now()
	var u User
	sql := `insert into users (username, password, first_name, last_name, phone, join_at, last_login_at)
			values ($1, $2, $3, $4, $5, $6, $6)
			returning username, password, first_name, last_name, phone, join_at, last_login_at`
	err := s.db.QueryRow(ctx, sql, nu.Username, nu.Password, nu.FirstName, nu.LastName, nu.Phone, now).
		Scan(&u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Phone, &u.JoinAt, &u.LastLoginAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return User{}, ErrUserExists
			}
		}
		return User{}, err
	}

	s.logger.Debugf("Created user (%s)", u.Username)

	return u, nil
}

// UserByUsername returns the full user record for username
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	s.logger.Debugf("Retrieving user (%s)", username)

	var u User
	sql := `select username, password, first_name, last_name, phone, join_at, last_login_at
			  from users
			 where username = $1`
	err := s.db.QueryRow(ctx, sql, username).
		Scan(&u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Phone, &u.JoinAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}

	return u, nil
}

// CredentialByUsername returns the stored opaque password hash for username
func (s *Store) CredentialByUsername(ctx context.Context, username string) (string, error) {
	var credential string
	sql := "select password from users where username = $1"
	err := s.db.QueryRow(ctx, sql, username).Scan(&credential)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotExist
		}
		return "", err
	}

	return credential, nil
}

// TouchLastLogin sets last_login_at for username to the current time
func (s *Store) TouchLastLogin(ctx context.Context, username string) error {
	s.logger.Debugf("Updating last login for user (%s)", username)

	tag, err := s.db.Exec(ctx, "update users set last_login_at = $1 where username = $2", time.Now(), username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotExist
	}

	return nil
}

// AllUsers returns summaries of all registered users ordered by username
func (s *Store) AllUsers(ctx context.Context) ([]UserSummary, error) {
	s.logger.Debug("Retrieving all users")

	sql := `select username, first_name, last_name, phone
			  from users
			 order by username asc`

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var u UserSummary
		err = rows.Scan(&u.Username, &u.FirstName, &u.LastName, &u.Phone)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d users", len(users))

	return users, nil
}

// userExists reports whether username references an existing user record
func (s *Store) userExists(ctx context.Context, username string) (bool, error) {
	var i int8
	sql := "select 1 from users where username = $1"
	err := s.db.QueryRow(ctx, sql, username).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// CreateMessage creates new message in database and returns the stored
// record with sent_at set and read_at null. A recipient username not
// referencing an existing user yields ErrUserNotExist.
func (s *Store) CreateMessage(ctx context.Context, from, to, body string) (Message, error) {
	s.logger.Debugf("Creating message from user (%s) to user (%s)", from, to)

	var m Message
	sql := `insert into messages (from_username, to_username, body, sent_at)
			values ($1, $2, $3, $4)
			returning id, from_username, to_username, body, sent_at, read_at`
	err := s.db.QueryRow(ctx, sql, from, to, body, time.Now()).
		Scan(&m.ID, &m.FromUsername, &m.ToUsername, &m.Body, &m.SentAt, &m.ReadAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.ForeignKeyViolation {
				return Message{}, ErrUserNotExist
			}
		}
		return Message{}, err
	}

	s.logger.Debugf("Created message with id %d", m.ID)

	return m, nil
}

// MessageByID returns the message with sender and recipient user summaries populated
func (s *Store) MessageByID(ctx context.Context, id int64) (Message, error) {
	s.logger.Debugf("Retrieving message (id: %d)", id)

	var m Message
	var fromUser, toUser UserSummary
	sql := `select messages.id,
				   messages.from_username,
				   messages.to_username,
				   messages.body,
				   messages.sent_at,
				   messages.read_at,
				   f.username, f.first_name, f.last_name, f.phone,
				   t.username, t.first_name, t.last_name, t.phone
			  from messages
			  join users f
				on f.username = messages.from_username
			  join users t
				on t.username = messages.to_username
			 where messages.id = $1`
	err := s.db.QueryRow(ctx, sql, id).Scan(
		&m.ID, &m.FromUsername, &m.ToUsername, &m.Body, &m.SentAt, &m.ReadAt,
		&fromUser.Username, &fromUser.FirstName, &fromUser.LastName, &fromUser.Phone,
		&toUser.Username, &toUser.FirstName, &toUser.LastName, &toUser.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotExist
		}
		return Message{}, err
	}

	m.FromUser = &fromUser
	m.ToUser = &toUser

	return m, nil
}

// MessageRecipient returns to_username of the message with provided id
func (s *Store) MessageRecipient(ctx context.Context, id int64) (string, error) {
	var recipient string
	sql := "select to_username from messages where id = $1"
	err := s.db.QueryRow(ctx, sql, id).Scan(&recipient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMessageNotExist
		}
		return "", err
	}

	return recipient, nil
}

// MarkRead sets read_at for the message with provided id if it is not set
// yet and returns id and read_at of the message. Re-marking an already
// read message is a no-op keeping the original read_at.
func (s *Store) MarkRead(ctx context.Context, id int64) (Message, error) {
	s.logger.Debugf("Marking message (id: %d) as read", id)

	_, err := s.db.Exec(ctx, "update messages set read_at = $1 where id = $2 and read_at is null", time.Now(), id)
	if err != nil {
		return Message{}, err
	}

	var m Message
	err = s.db.QueryRow(ctx, "select id, read_at from messages where id = $1", id).Scan(&m.ID, &m.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotExist
		}
		return Message{}, err
	}

	return m, nil
}

// MessagesFrom returns all messages sent by username with recipient user
// summaries populated, sorted by message creation time (from earliest to
// latest). A username not referencing an existing user yields
// ErrUserNotExist; a user without sent messages yields an empty list.
func (s *Store) MessagesFrom(ctx context.Context, username string) ([]Message, error) {
	s.logger.Debugf("Retrieving messages sent by user (%s)", username)

	exists, err := s.userExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotExist
	}

	sql := `select messages.id,
				   messages.body,
				   messages.sent_at,
				   messages.read_at,
				   t.username, t.first_name, t.last_name, t.phone
			  from messages
			  join users t
				on t.username = messages.to_username
			 where messages.from_username = $1
			 order by messages.sent_at asc`

	rows, err := s.db.Query(ctx, sql, username)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		var toUser UserSummary
		err = rows.Scan(&m.ID, &m.Body, &m.SentAt, &m.ReadAt,
			&toUser.Username, &toUser.FirstName, &toUser.LastName, &toUser.Phone)
		if err != nil {
			return nil, err
		}
		m.ToUser = &toUser
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// MessagesTo returns all messages received by username with sender user
// summaries populated, sorted by message creation time (from earliest to
// latest). A username not referencing an existing user yields
// ErrUserNotExist; a user without received messages yields an empty list.
func (s *Store) MessagesTo(ctx context.Context, username string) ([]Message, error) {
	s.logger.Debugf("Retrieving messages received by user (%s)", username)

	exists, err := s.userExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotExist
	}

	sql := `select messages.id,
				   messages.body,
				   messages.sent_at,
				   messages.read_at,
				   f.username, f.first_name, f.last_name, f.phone
			  from messages
			  join users f
				on f.username = messages.from_username
			 where messages.to_username = $1
			 order by messages.sent_at asc`

	rows, err := s.db.Query(ctx, sql, username)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		var fromUser UserSummary
		err = rows.Scan(&m.ID, &m.Body, &m.SentAt, &m.ReadAt,
			&fromUser.Username, &fromUser.FirstName, &fromUser.LastName, &fromUser.Phone)
		if err != nil {
			return nil, err
		}
		m.FromUser = &fromUser
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}
