// Package remote persists the ledger to the warehouse: two user-scoped
// tables, `transactions` and `categories`. It is the authoritative store
// whenever a user is signed in; every row carries the owning user id.
//
// Writes use parameterized DML rather than the streaming inserter because
// freshly streamed rows sit in the streaming buffer and cannot be updated
// or deleted until it flushes, which breaks the optimistic-mutation
// protocol's update-after-insert pattern.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/reconcile"
	"github.com/darrenwu-git/snap-ledger/internal/store"
)

const (
	transactionsTable = "transactions"
	categoriesTable   = "categories"
)

// Store is the remote adapter, scoped to one owning user.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
	userID  string
	log     zerolog.Logger
	clock   func() time.Time
}

// New creates a remote store for the given user. The client is shared and
// not closed by the store.
func New(client *bigquery.Client, project, dataset, userID string, log zerolog.Logger) *Store {
	return &Store{
		client:  client,
		project: project,
		dataset: dataset,
		userID:  userID,
		log:     log,
		clock:   time.Now,
	}
}

func (s *Store) table(name string) string {
	// Fully qualified to avoid depending on the client's default project.
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// Load fetches both collections for the owning user. A missing categories
// table or an empty category result means the user has no custom categories
// yet; the default set is computed client-side, upserted remotely and
// returned.
func (s *Store) Load(ctx context.Context) ([]domain.Transaction, []domain.Category, error) {
	txs, err := s.loadTransactions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("remote.Load: transactions: %w", err)
	}

	cats, err := s.loadCategories(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("remote.Load: categories: %w", err)
	}

	merged, added := reconcile.SeedDefaults(cats, s.clock())
	if len(added) > 0 {
		s.log.Info().Int("count", len(added)).Str("user_id", s.userID).Msg("Seeding default categories remotely")
		if err := s.UpsertCategories(ctx, added); err != nil {
			return nil, nil, fmt.Errorf("remote.Load: seeding defaults: %w", err)
		}
	}
	return txs, merged, nil
}

func (s *Store) loadTransactions(ctx context.Context) ([]domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT id, user_id, amount, type, date, category, description, status, updated_at
		FROM %s
		WHERE user_id = @user_id
		ORDER BY date DESC
	`, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: s.userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var txs []domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		txs = append(txs, r.Domain())
	}
	return txs, nil
}

func (s *Store) loadCategories(ctx context.Context) ([]domain.Category, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT id, user_id, name, icon, type, updated_at
		FROM %s
		WHERE user_id = @user_id
		ORDER BY name
	`, s.table(categoriesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: s.userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		if isNotFound(err) {
			// No categories table yet: not an error, the caller seeds
			// defaults.
			s.log.Warn().Str("user_id", s.userID).Msg("Categories table not found, treating as empty")
			return nil, nil
		}
		return nil, fmt.Errorf("query read: %w", err)
	}

	var cats []domain.Category
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		cats = append(cats, r.Domain())
	}
	return cats, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) error {
	row, err := transactionRow(s.userID, t)
	if err != nil {
		return store.NewWriteError("transactions", "insert", err)
	}
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, amount, type, date, category, description, status, updated_at)
		VALUES (@id, @user_id, @amount, @type, @date, @category, @description, @status, @updated_at)
	`, s.table(transactionsTable))
	return store.NewWriteError("transactions", "insert", s.run(ctx, sql, transactionParams(row)))
}

func (s *Store) UpdateTransaction(ctx context.Context, t domain.Transaction) error {
	row, err := transactionRow(s.userID, t)
	if err != nil {
		return store.NewWriteError("transactions", "update", err)
	}
	sql := fmt.Sprintf(`
		UPDATE %s
		SET amount = @amount, type = @type, date = @date, category = @category,
		    description = @description, status = @status, updated_at = @updated_at
		WHERE id = @id AND user_id = @user_id
	`, s.table(transactionsTable))
	return store.NewWriteError("transactions", "update", s.run(ctx, sql, transactionParams(row)))
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = @id AND user_id = @user_id`, s.table(transactionsTable))
	return store.NewWriteError("transactions", "delete", s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "user_id", Value: s.userID},
	}))
}

// UpsertTransactions merges each record by id. Reconciliation writes go
// through here so that re-imported records update in place.
func (s *Store) UpsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	sql := fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @id AS id, @user_id AS user_id) src
		ON t.id = src.id AND t.user_id = src.user_id
		WHEN MATCHED THEN UPDATE
		  SET amount = @amount, type = @type, date = @date, category = @category,
		      description = @description, status = @status, updated_at = @updated_at
		WHEN NOT MATCHED THEN
		  INSERT (id, user_id, amount, type, date, category, description, status, updated_at)
		  VALUES (@id, @user_id, @amount, @type, @date, @category, @description, @status, @updated_at)
	`, s.table(transactionsTable))

	for _, t := range txs {
		row, err := transactionRow(s.userID, t)
		if err != nil {
			return store.NewWriteError("transactions", "upsert", err)
		}
		if err := s.run(ctx, sql, transactionParams(row)); err != nil {
			return store.NewWriteError("transactions", "upsert", err)
		}
	}
	return nil
}

func (s *Store) InsertCategory(ctx context.Context, c domain.Category) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, name, icon, type, updated_at)
		VALUES (@id, @user_id, @name, @icon, @type, @updated_at)
	`, s.table(categoriesTable))
	return store.NewWriteError("categories", "insert", s.run(ctx, sql, categoryParams(categoryRow(s.userID, c))))
}

func (s *Store) UpdateCategory(ctx context.Context, c domain.Category) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET name = @name, icon = @icon, type = @type, updated_at = @updated_at
		WHERE id = @id AND user_id = @user_id
	`, s.table(categoriesTable))
	return store.NewWriteError("categories", "update", s.run(ctx, sql, categoryParams(categoryRow(s.userID, c))))
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = @id AND user_id = @user_id`, s.table(categoriesTable))
	return store.NewWriteError("categories", "delete", s.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "user_id", Value: s.userID},
	}))
}

func (s *Store) UpsertCategories(ctx context.Context, cats []domain.Category) error {
	sql := fmt.Sprintf(`
		MERGE %s c
		USING (SELECT @id AS id, @user_id AS user_id) src
		ON c.id = src.id AND c.user_id = src.user_id
		WHEN MATCHED THEN UPDATE
		  SET name = @name, icon = @icon, type = @type, updated_at = @updated_at
		WHEN NOT MATCHED THEN
		  INSERT (id, user_id, name, icon, type, updated_at)
		  VALUES (@id, @user_id, @name, @icon, @type, @updated_at)
	`, s.table(categoriesTable))

	for _, c := range cats {
		if err := s.run(ctx, sql, categoryParams(categoryRow(s.userID, c))); err != nil {
			return store.NewWriteError("categories", "upsert", err)
		}
	}
	return nil
}

// run executes one DML statement and waits for it to complete.
func (s *Store) run(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := s.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job failed: %w", err)
	}
	return nil
}

func transactionParams(r *TransactionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "user_id", Value: r.UserID},
		{Name: "amount", Value: r.Amount},
		{Name: "type", Value: r.Type},
		{Name: "date", Value: r.Date},
		{Name: "category", Value: r.Category},
		{Name: "description", Value: r.Description},
		{Name: "status", Value: r.Status},
		{Name: "updated_at", Value: r.UpdatedAt},
	}
}

func categoryParams(r *CategoryRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "user_id", Value: r.UserID},
		{Name: "name", Value: r.Name},
		{Name: "icon", Value: r.Icon},
		{Name: "type", Value: r.Type},
		{Name: "updated_at", Value: r.UpdatedAt},
	}
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 404
}

var _ store.Store = (*Store)(nil)
