package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/boutique/orders-service/internal/domain"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

var ErrCustomerNotFound = errors.New("customer not found")

const mysqlDuplicateEntry = 1062

const orderColumns = `o.id_order, o.numero_commande, o.id_customer, o.sous_total_order, o.discount_amount_order,
	o.discount_percentage_order, o.delivery_cost_order, o.total_order, o.status_order, o.date_livraison_souhaitee,
	o.payment_status, o.payment_method, o.notes_order, o.vue_par_admin, o.date_vue_admin, o.idempotency_key,
	o.request_fingerprint, o.date_creation_order, o.date_confirmation_order, o.date_livraison_order`

const customerColumns = `c.id_customer, c.nom_customer, c.prenom_customer, c.email_customer, c.telephone_customer,
	c.adresse_customer, c.ville_customer, c.code_postal_customer, c.pays_customer`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	cfg := mysql.NewConfig()
	cfg.User = cred.User
	cfg.Passwd = cred.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	cfg.DBName = cred.DBName
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.WithFields(log.Fields{"addr": cfg.Addr, "db": cfg.DBName}).Info("connected to mysql")
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := migratemysql.WithInstance(r.db.DB, &migratemysql.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, o *domain.NewOrder, event *domain.OutboxEvent) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	customerID, err := findOrCreateCustomer(ctx, tx, &o.Customer)
	if err != nil {
		return 0, err
	}

	h := o.Order
	res, err := tx.ExecContext(ctx, `INSERT INTO orders (numero_commande, id_customer, sous_total_order,
		discount_amount_order, discount_percentage_order, delivery_cost_order, total_order, status_order,
		date_livraison_souhaitee, payment_status, payment_method, notes_order, idempotency_key, request_fingerprint,
		date_creation_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.OrderNumber, customerID, h.Subtotal, h.DiscountAmount, h.DiscountPercentage, h.DeliveryCost, h.Total,
		h.Status, h.DesiredDelivery, h.PaymentStatus, h.PaymentMethod, h.Notes, h.IdempotencyKey,
		h.RequestFingerprint, h.CreatedAt)
	if err != nil {
		if isDuplicate(err, "uq_orders_idempotency") {
			return 0, ErrDuplicateOrder
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read order id: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_items (id_order, id_product, nom_product_snapshot,
			reference_product_snapshot, price_product_snapshot, size_selected, color_selected, quantity_ordered,
			subtotal_item, discount_item, total_item)
			VALUES (?, (SELECT id_product FROM products WHERE id_product = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			orderID, item.ProductID, item.Name, item.Reference, item.UnitPrice, item.Size, item.Color,
			item.Quantity, item.Subtotal, item.Discount, item.Total)
		if err != nil {
			return 0, fmt.Errorf("insert order item %q: %w", item.Name, err)
		}
	}

	if a := o.DeliveryAddress; a != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO delivery_addresses (id_order, nom_destinataire, prenom_destinataire,
			telephone_destinataire, adresse_livraison, ville_livraison, code_postal_livraison, pays_livraison,
			instructions_livraison) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			orderID, a.LastName, a.FirstName, a.Phone, a.Address, a.City, a.PostalCode, a.Country, a.Instructions)
		if err != nil {
			return 0, fmt.Errorf("insert delivery address: %w", err)
		}
	}

	if event != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_outbox (aggregate_id, event_type, payload) VALUES (?, ?, ?)`,
			event.AggregateID, event.EventType, event.Payload)
		if err != nil {
			return 0, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}
	return orderID, nil
}

// findOrCreateCustomer never updates an existing customer row.
func findOrCreateCustomer(ctx context.Context, tx *sqlx.Tx, c *domain.Customer) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id_customer FROM customers WHERE email_customer = ? FOR UPDATE`, c.Email)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup customer: %w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO customers (nom_customer, prenom_customer, email_customer,
		telephone_customer, adresse_customer, ville_customer, code_postal_customer, pays_customer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.LastName, c.FirstName, c.Email, c.Phone, c.Address, c.City, c.PostalCode, c.Country)
	if err != nil {
		if isDuplicate(err, "uq_customers_email") {
			// lost a race with a concurrent first order from the same e-mail
			if e2 := tx.GetContext(ctx, &id, `SELECT id_customer FROM customers WHERE email_customer = ?`, c.Email); e2 != nil {
				return 0, fmt.Errorf("lookup customer after conflict: %w", e2)
			}
			return id, nil
		}
		return 0, fmt.Errorf("insert customer: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders o WHERE o.idempotency_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by idempotency key: %w", err)
	}
	return &order, nil
}

func (r *Repository) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.GetContext(ctx, &c, `SELECT `+customerColumns+` FROM customers c WHERE c.email_customer = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query customer by email: %w", err)
	}
	return &c, nil
}

// GetOrderDetail reads header, items and delivery address from one read-only
// REPEATABLE READ transaction so all three observe the same snapshot.
func (r *Repository) GetOrderDetail(ctx context.Context, id int64) (*domain.OrderDetail, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var d domain.OrderDetail
	o, c := &d.Order, &d.Customer
	err = tx.QueryRowxContext(ctx, `SELECT `+orderColumns+`, `+customerColumns+`
		FROM orders o JOIN customers c ON c.id_customer = o.id_customer
		WHERE o.id_order = ?`, id).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Subtotal, &o.DiscountAmount,
		&o.DiscountPercentage, &o.DeliveryCost, &o.Total, &o.Status, &o.DesiredDelivery,
		&o.PaymentStatus, &o.PaymentMethod, &o.Notes, &o.SeenByAdmin, &o.SeenAt, &o.IdempotencyKey,
		&o.RequestFingerprint, &o.CreatedAt, &o.ConfirmedAt, &o.DeliveredAt,
		&c.ID, &c.LastName, &c.FirstName, &c.Email, &c.Phone,
		&c.Address, &c.City, &c.PostalCode, &c.Country,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order header: %w", err)
	}

	d.Items = make([]domain.OrderItem, 0)
	err = tx.SelectContext(ctx, &d.Items, `SELECT oi.id_order_item, oi.id_order, oi.id_product,
		oi.nom_product_snapshot, oi.reference_product_snapshot, oi.price_product_snapshot, oi.size_selected,
		oi.color_selected, oi.quantity_ordered, oi.subtotal_item, oi.discount_item, oi.total_item, p.img_product
		FROM order_items oi LEFT JOIN products p ON p.id_product = oi.id_product
		WHERE oi.id_order = ? ORDER BY oi.id_order_item`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}

	var addr domain.DeliveryAddress
	err = tx.GetContext(ctx, &addr, `SELECT id_delivery_address, id_order, nom_destinataire, prenom_destinataire,
		telephone_destinataire, adresse_livraison, ville_livraison, code_postal_livraison, pays_livraison,
		instructions_livraison FROM delivery_addresses WHERE id_order = ?`, id)
	switch {
	case err == nil:
		d.DeliveryAddress = &addr
	case errors.Is(err, sql.ErrNoRows):
		d.DeliveryAddress = nil
	default:
		return nil, fmt.Errorf("query delivery address: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read transaction: %w", err)
	}
	return &d, nil
}

func (r *Repository) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.OrderSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "o.status_order = ?")
		args = append(args, f.Status)
	}
	if f.UnseenOnly {
		where = append(where, "o.vue_par_admin = FALSE")
	}

	query := `SELECT o.id_order, o.numero_commande, o.total_order, o.status_order, o.payment_status,
		o.vue_par_admin, o.date_creation_order, c.nom_customer, c.prenom_customer, c.email_customer
		FROM orders o JOIN customers c ON c.id_customer = o.id_customer`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.date_creation_order DESC, o.id_order DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	orders := make([]domain.OrderSummary, 0)
	if err := r.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, from, to domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status_order = ?,
		date_confirmation_order = CASE WHEN ? = 'confirmed' THEN NOW() ELSE date_confirmation_order END,
		date_livraison_order = CASE WHEN ? = 'delivered' THEN NOW() ELSE date_livraison_order END
		WHERE id_order = ? AND status_order = ?`,
		to, to, to, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, from, to domain.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET payment_status = ? WHERE id_order = ? AND payment_status = ?`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return r.checkAffected(ctx, res, id)
}

func (r *Repository) MarkSeen(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET vue_par_admin = TRUE,
		date_vue_admin = COALESCE(date_vue_admin, NOW()) WHERE id_order = ? AND vue_par_admin = FALSE`, id)
	if err != nil {
		return fmt.Errorf("mark order seen: %w", err)
	}
	if err := r.checkAffected(ctx, res, id); err != nil && !errors.Is(err, ErrStatusConflict) {
		return err
	}
	// already seen: nothing to do
	return nil
}

// checkAffected tells a missing order apart from a lost conditional update.
func (r *Repository) checkAffected(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id_order = ?)`, id); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrStatusConflict
}

func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	events := make([]*domain.OutboxEvent, 0)
	err := r.db.SelectContext(ctx, &events, `SELECT id, aggregate_id, event_type, payload, created_at
		FROM order_outbox WHERE published_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsPublished(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET published_at = NOW() WHERE id = ? AND published_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOutboxEventNotFound
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isDuplicate(err error, key string) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry && strings.Contains(myErr.Message, key)
}
