package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/fjod/boutique/pkg/logger"
	"github.com/fjod/boutique/pkg/tracing"
	"github.com/fjod/boutique/storefront/internal/cart"
	"github.com/fjod/boutique/storefront/internal/checkout"
	"github.com/fjod/boutique/storefront/internal/config"
	"github.com/fjod/boutique/storefront/internal/domain"
	"github.com/fjod/boutique/storefront/internal/gateway"
	"github.com/fjod/boutique/storefront/internal/storage"
)

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "shopctl",
		Usage:     "shop from the command line: manage the cart and place orders",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			cartCommand(),
			checkoutCommand(),
			orderCommand(),
		},
	}
}

// session bundles what every command needs. close must be called once.
type session struct {
	cfg     *config.Config
	storage storage.Storage
	cart    *cart.Store
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	tracing.Init()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		storage: st,
		cart:    cart.Open(ctx, st, cfg.CartSlot),
	}, nil
}

func (s *session) close(ctx context.Context) {
	s.cart.Close(ctx)
	if err := s.storage.Close(); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("failed to close cart storage")
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.CartBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return storage.NewRedisStorage(client, cfg.SessionID, cfg.CartTTL), nil
	case config.BackendMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		st := storage.NewMongoStorage(db, cfg.SessionID, cfg.CartTTL)
		if err := st.CreateIndexes(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return storage.NewSQLiteStorage(cfg.CartDBPath)
	}
}

// withSession wraps an action with session setup and teardown.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c.Context)
		if err != nil {
			return err
		}
		defer s.close(c.Context)
		return action(c, s)
	}
}

func cartCommand() *cli.Command {
	lineFlags := []cli.Flag{
		&cli.Int64Flag{Name: "id", Usage: "product id", Required: true},
		&cli.StringFlag{Name: "size", Usage: "selected size", Required: true},
	}

	return &cli.Command{
		Name:  "cart",
		Usage: "inspect and change the cart",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "add a product to the cart",
				Flags: append(lineFlags,
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "price", Usage: "unit price in TND", Required: true},
					&cli.IntFlag{Name: "quantity", Value: 1},
					&cli.StringFlag{Name: "image"},
					&cli.StringFlag{Name: "color"},
				),
				Action: withSession(func(c *cli.Context, s *session) error {
					price, err := decimal.NewFromString(c.String("price"))
					if err != nil || !price.IsPositive() {
						return fmt.Errorf("invalid price %q", c.String("price"))
					}
					line := domain.CartLine{
						ProductID: c.Int64("id"),
						Name:      c.String("name"),
						UnitPrice: price,
						Size:      c.String("size"),
						Image:     c.String("image"),
						Color:     c.String("color"),
					}
					if err := s.cart.Add(c.Context, line, c.Int("quantity")); err != nil {
						return err
					}
					return printCart(c.App.Writer, s.cart)
				}),
			},
			{
				Name:  "remove",
				Usage: "remove a line from the cart",
				Flags: lineFlags,
				Action: withSession(func(c *cli.Context, s *session) error {
					s.cart.Remove(c.Context, c.Int64("id"), c.String("size"))
					return printCart(c.App.Writer, s.cart)
				}),
			},
			{
				Name:  "set",
				Usage: "set the quantity of a line; 0 removes it",
				Flags: append(lineFlags, &cli.IntFlag{Name: "quantity", Required: true}),
				Action: withSession(func(c *cli.Context, s *session) error {
					s.cart.SetQuantity(c.Context, c.Int64("id"), c.String("size"), c.Int("quantity"))
					return printCart(c.App.Writer, s.cart)
				}),
			},
			{
				Name:  "show",
				Usage: "print the cart",
				Action: withSession(func(c *cli.Context, s *session) error {
					return printCart(c.App.Writer, s.cart)
				}),
			},
			{
				Name:  "clear",
				Usage: "empty the cart",
				Action: withSession(func(c *cli.Context, s *session) error {
					s.cart.Clear(c.Context)
					return printCart(c.App.Writer, s.cart)
				}),
			},
		},
	}
}

func checkoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkout",
		Usage: "fill in contact and delivery details and place the order",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "first-name"},
			&cli.StringFlag{Name: "last-name"},
			&cli.StringFlag{Name: "email"},
			&cli.StringFlag{Name: "phone"},
			&cli.StringFlag{Name: "address"},
			&cli.StringFlag{Name: "city"},
			&cli.StringFlag{Name: "postal-code"},
			&cli.StringFlag{Name: "country", Usage: "defaults to " + checkout.DefaultCountry},
			&cli.StringFlag{Name: "date", Usage: "desired delivery date, YYYY-MM-DD"},
			&cli.StringFlag{Name: "notes"},
		},
		Action: withSession(runCheckout),
	}
}

func runCheckout(c *cli.Context, s *session) error {
	out := c.App.Writer
	ctrl := checkout.New(s.cart, gateway.New(s.cfg.APIURL, s.cfg.SubmitTimeout), s.cfg.SubmitTimeout)
	if ctrl.State() == checkout.StateEmpty {
		fmt.Fprintln(out, "Your cart is empty.")
		return nil
	}

	ctrl.SetContact(checkout.ContactInfo{
		FirstName: c.String("first-name"),
		LastName:  c.String("last-name"),
		Email:     c.String("email"),
		Phone:     c.String("phone"),
	})
	if err := advance(out, ctrl); err != nil {
		return err
	}

	ctrl.SetDelivery(checkout.DeliveryInfo{
		Address:    c.String("address"),
		City:       c.String("city"),
		PostalCode: c.String("postal-code"),
		Country:    c.String("country"),
		Date:       c.String("date"),
		Notes:      c.String("notes"),
	})
	if err := advance(out, ctrl); err != nil {
		return err
	}

	fmt.Fprintln(out, "Step 3/3: review")
	if err := printCart(out, s.cart); err != nil {
		return err
	}
	d := ctrl.Delivery()
	fmt.Fprintf(out, "Delivery: %s, %s %s, %s on %s\n", d.Address, d.City, d.PostalCode, d.Country, d.Date)
	fmt.Fprintln(out, "Delivery cost: free")

	ack, err := ctrl.Confirm(c.Context)
	if err != nil {
		if errors.Is(err, checkout.ErrSubmissionFailed) {
			fmt.Fprintln(out, "We could not place your order. Your cart has been kept, please try again.")
		}
		return err
	}
	fmt.Fprintf(out, "Order %s confirmed (id %d), total %s\n", ack.OrderNumber, ack.ID, formatTND(ack.Total))
	return nil
}

// advance moves one step forward and prints field errors when it cannot.
func advance(out io.Writer, ctrl *checkout.Controller) error {
	step := ctrl.State().Step()
	err := ctrl.Next()
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintf(out, "Step %d/3 is incomplete:\n", step)
		for _, name := range sortedKeys(verr.Fields) {
			fmt.Fprintf(out, "  --%s %s\n", flagName(name), verr.Fields[name])
		}
	}
	return err
}

func orderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "look up placed orders",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print an order with its items",
				Flags: []cli.Flag{&cli.StringFlag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					logger.Setup(cfg.LogLevel, cfg.LogFormat)
					tracing.Init()

					detail, err := gateway.New(cfg.APIURL, cfg.SubmitTimeout).FetchOrder(c.Context, c.String("id"))
					if err != nil {
						return err
					}
					printOrder(c.App.Writer, detail)
					return nil
				},
			},
		},
	}
}
