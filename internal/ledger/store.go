package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	selectCACQuery = `SELECT uuid, iban, token, type, reason FROM cacr WHERE uuid = $1`
	insertCACQuery = `INSERT INTO cacr (uuid, iban, token, type, reason) VALUES ($1, $2, $3, $4, $5)`

	selectCMTQuery = `SELECT uuid, reason FROM cmtr WHERE uuid = $1`
	insertCMTQuery = `INSERT INTO cmtr (uuid, reason) VALUES ($1, $2)`

	selectBalanceQuery = `SELECT iban, token, amount, type, lmt FROM balancer WHERE iban = $1`
	insertBalanceQuery = `INSERT INTO balancer (iban, token, amount, type, lmt) VALUES ($1, $2, $3, $4, $5)`
	debitBalanceQuery  = `UPDATE balancer SET amount = amount - $1 WHERE iban = $2 RETURNING iban, token, amount, type, lmt`
	creditBalanceQuery = `UPDATE balancer SET amount = amount + $1 WHERE iban = $2 RETURNING iban, token, amount, type, lmt`
)

// Store is the idempotent command ledger over Postgres.
type Store struct {
	db                *sql.DB
	logger            *zap.Logger
	allowExternalFrom bool
}

// NewStore creates a Store. allowExternalFrom controls whether transfers
// from valid but unmanaged IBANs are accepted without a local debit.
func NewStore(db *sql.DB, logger *zap.Logger, allowExternalFrom bool) *Store {
	return &Store{
		db:                db,
		logger:            logger,
		allowExternalFrom: allowExternalFrom,
	}
}

// GetOrCreateAccountCreation returns the account-creation record for id,
// creating it (and on success the balance row) on first observation.
func (s *Store) GetOrCreateAccountCreation(ctx context.Context, id uuid.UUID, accountType string) (AccountCreation, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return AccountCreation{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer s.rollback(tx)

	existing, err := scanAccountCreation(tx.QueryRowContext(ctx, selectCACQuery, id))
	if err == nil {
		if err := tx.Commit(); err != nil {
			return AccountCreation{}, fmt.Errorf("commit: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return AccountCreation{}, fmt.Errorf("load account creation %s: %w", id, err)
	}

	iban := NewIBAN()
	cac := AccountCreation{UUID: id, Type: &accountType}

	_, err = scanBalance(tx.QueryRowContext(ctx, selectBalanceQuery, iban))
	switch {
	case err == nil:
		reason := ReasonIbanExists
		cac.Reason = &reason
	case errors.Is(err, sql.ErrNoRows):
		token := NewToken()
		if _, err := tx.ExecContext(ctx, insertBalanceQuery, iban, token, int64(0), accountType, DefaultLimit); err != nil {
			return AccountCreation{}, fmt.Errorf("insert balance %s: %w", iban, err)
		}
		cac.IBAN = &iban
		cac.Token = &token
	default:
		return AccountCreation{}, fmt.Errorf("load balance %s: %w", iban, err)
	}

	if _, err := tx.ExecContext(ctx, insertCACQuery, id, cac.IBAN, cac.Token, cac.Type, cac.Reason); err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent delivery of the same
			// command; the winner's row is the record of truth.
			if rbErr := tx.Rollback(); rbErr != nil {
				return AccountCreation{}, fmt.Errorf("rollback after duplicate: %w", rbErr)
			}
			return scanAccountCreation(s.db.QueryRowContext(ctx, selectCACQuery, id))
		}
		return AccountCreation{}, fmt.Errorf("insert account creation %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return AccountCreation{}, fmt.Errorf("commit: %w", err)
	}
	return cac, nil
}

// GetOrCreateMoneyTransfer returns the money-transfer record for id. On
// first observation it runs the transfer and returns the post-mutation
// balances; on replay both balances are nil.
func (s *Store) GetOrCreateMoneyTransfer(ctx context.Context, id uuid.UUID, tr Transfer) (MoneyTransfer, *Balance, *Balance, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return MoneyTransfer{}, nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer s.rollback(tx)

	existing, err := scanMoneyTransfer(tx.QueryRowContext(ctx, selectCMTQuery, id))
	if err == nil {
		if err := tx.Commit(); err != nil {
			return MoneyTransfer{}, nil, nil, fmt.Errorf("commit: %w", err)
		}
		return existing, nil, nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return MoneyTransfer{}, nil, nil, fmt.Errorf("load money transfer %s: %w", id, err)
	}

	reason, bFrom, bTo, err := s.transfer(ctx, tx, tr)
	if err != nil {
		return MoneyTransfer{}, nil, nil, err
	}

	cmt := MoneyTransfer{UUID: id, Reason: reason}
	if _, err := tx.ExecContext(ctx, insertCMTQuery, id, reason); err != nil {
		if isUniqueViolation(err) {
			if rbErr := tx.Rollback(); rbErr != nil {
				return MoneyTransfer{}, nil, nil, fmt.Errorf("rollback after duplicate: %w", rbErr)
			}
			winner, err := scanMoneyTransfer(s.db.QueryRowContext(ctx, selectCMTQuery, id))
			return winner, nil, nil, err
		}
		return MoneyTransfer{}, nil, nil, fmt.Errorf("insert money transfer %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return MoneyTransfer{}, nil, nil, fmt.Errorf("commit: %w", err)
	}
	return cmt, bFrom, bTo, nil
}

// transfer applies the debit and credit inside tx and returns the failure
// reason, if any, plus the mutated balances.
func (s *Store) transfer(ctx context.Context, tx *sql.Tx, tr Transfer) (*string, *Balance, *Balance, error) {
	if !ValidIBAN(tr.From) {
		return reasonPtr(ReasonFromInvalid), nil, nil, nil
	}
	if tr.From == tr.To {
		return reasonPtr(ReasonSameAccount), nil, nil, nil
	}

	var reason *string
	var bFrom *Balance
	if OpenIBAN(tr.From) {
		bal, err := scanBalance(tx.QueryRowContext(ctx, selectBalanceQuery, tr.From))
		switch {
		case err == nil:
			switch {
			case bal.Token != tr.Token:
				reason = reasonPtr(ReasonInvalidToken)
			case bal.Amount-tr.Amount < bal.Limit:
				reason = reasonPtr(ReasonInsufficientFunds)
			default:
				updated, err := scanBalance(tx.QueryRowContext(ctx, debitBalanceQuery, tr.Amount, tr.From))
				if err != nil {
					return nil, nil, nil, fmt.Errorf("debit %s: %w", tr.From, err)
				}
				bFrom = &updated
			}
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("Open iban has no balance row", zap.String("iban", tr.From))
		default:
			return nil, nil, nil, fmt.Errorf("load balance %s: %w", tr.From, err)
		}
	} else if !s.allowExternalFrom {
		reason = reasonPtr(ReasonFromExternal)
	}

	if reason != nil {
		return reason, nil, nil, nil
	}

	var bTo *Balance
	if OpenIBAN(tr.To) {
		_, err := scanBalance(tx.QueryRowContext(ctx, selectBalanceQuery, tr.To))
		switch {
		case err == nil:
			updated, err := scanBalance(tx.QueryRowContext(ctx, creditBalanceQuery, tr.Amount, tr.To))
			if err != nil {
				return nil, nil, nil, fmt.Errorf("credit %s: %w", tr.To, err)
			}
			bTo = &updated
		case errors.Is(err, sql.ErrNoRows):
			// Unknown managed iban on the credit side: no reason, no credit.
		default:
			return nil, nil, nil, fmt.Errorf("load balance %s: %w", tr.To, err)
		}
	}

	return nil, bFrom, bTo, nil
}

func (s *Store) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Error("Failed to rollback transaction", zap.Error(err))
	}
}

func scanBalance(row *sql.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.IBAN, &b.Token, &b.Amount, &b.Type, &b.Limit)
	return b, err
}

func scanAccountCreation(row *sql.Row) (AccountCreation, error) {
	var c AccountCreation
	err := row.Scan(&c.UUID, &c.IBAN, &c.Token, &c.Type, &c.Reason)
	return c, err
}

func scanMoneyTransfer(row *sql.Row) (MoneyTransfer, error) {
	var m MoneyTransfer
	err := row.Scan(&m.UUID, &m.Reason)
	return m, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func reasonPtr(s string) *string {
	return &s
}
