package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"BookStore/internal/book"
	"BookStore/internal/cart"
	"BookStore/internal/catalogclient"
	"BookStore/internal/session"
	"BookStore/internal/storefront"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// repl reads one command per line and prints results. Output from timers
// and notifiers is serialized with the command output.
type repl struct {
	sf *storefront.Storefront

	mu  sync.Mutex
	out io.Writer

	commands map[string]command
}

func newREPL(out io.Writer) *repl {
	r := &repl{out: out}
	r.commands = map[string]command{
		"help":         {"help", r.help},
		"books":        {"books", r.books},
		"book":         {"book <id>", r.book},
		"search":       {"search <text>", r.search},
		"add":          {"add <id>", r.add},
		"remove":       {"remove <id>", r.remove},
		"cart":         {"cart", r.showCart},
		"clear":        {"clear", r.clear},
		"register":     {"register <email> <password>", r.register},
		"login":        {"login <email> <password>", r.login},
		"logout":       {"logout", r.logout},
		"whoami":       {"whoami", r.whoami},
		"admin-login":  {"admin-login <username> <password>", r.adminLogin},
		"admin-logout": {"admin-logout", r.adminLogout},
		"create":       {"create <title> | <category> | <price> | <description> | <cover image>", r.create},
		"update":       {"update <id> field=value ...  (title, description, category, cover, price, oldprice, trending)", r.update},
		"delete":       {"delete <id>", r.del},
		"quit":         {"quit", func(context.Context, []string) error { return errQuit }},
	}
	return r
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *repl) cartNotifier() cart.Notifier {
	return cart.NotifierFunc(func(n cart.Notice, b book.Book) {
		switch n {
		case cart.Added:
			r.printf("%q added to cart\n", b.Title)
		case cart.AlreadyInCart:
			r.printf("%q is already in your cart\n", b.Title)
		case cart.Cleared:
			r.printf("cart cleared\n")
		}
	})
}

func (r *repl) adminExpired() {
	r.printf("admin token expired, log in again\n")
}

// Run executes commands from in until EOF, quit, or ctx ends.
func (r *repl) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	r.printf("bookstore: type 'help' for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if err := r.exec(ctx, line); errors.Is(err, errQuit) {
				return nil
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := r.commands[name]
	if !ok {
		r.printf("unknown command %q, try 'help'\n", fields[0])
		return nil
	}

	err := cmd.run(ctx, fields[1:])
	if err != nil && !errors.Is(err, errQuit) {
		r.printf("error: %s\n", describe(err))
	}
	return err
}

// describe turns errors into messages for the shopper.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidEmail):
		return "that email address is not valid"
	case errors.Is(err, session.ErrWeakPassword):
		return "password is too weak"
	case errors.Is(err, session.ErrEmailExists):
		return "an account with that email already exists"
	case errors.Is(err, session.ErrInvalidCredentials):
		return "wrong email or password"
	case errors.Is(err, catalogclient.ErrNotFound):
		return "no such book"
	case errors.Is(err, catalogclient.ErrUnauthorized):
		return "not authorized, use admin-login"
	case errors.Is(err, catalogclient.ErrUnavailable):
		return "catalog is unreachable, try again later"
	default:
		return err.Error()
	}
}

func usage(u string) error {
	return errors.New("usage: " + u)
}

func (r *repl) help(context.Context, []string) error {
	names := make([]string, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		r.printf("  %s\n", r.commands[n].usage)
	}
	return nil
}

func (r *repl) books(ctx context.Context, _ []string) error {
	books, err := r.sf.Catalog.FetchAll(ctx)
	if err != nil {
		return err
	}
	r.table(books)
	return nil
}

func (r *repl) book(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("book <id>")
	}
	b, err := r.sf.Catalog.FetchByID(ctx, args[0])
	if err != nil {
		return err
	}
	trending := ""
	if b.Trending {
		trending = " (trending)"
	}
	r.printf("%s%s\n  id: %s\n  category: %s\n  price: %s (was %s)\n  cover: %s\n  %s\n",
		b.Title, trending, b.ID, b.Category, b.NewPrice.StringFixed(2), b.OldPrice.StringFixed(2),
		b.CoverImage, b.Description)
	return nil
}

func (r *repl) search(ctx context.Context, args []string) error {
	found, err := r.sf.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(found) == 0 {
		r.printf("no matches\n")
		return nil
	}
	r.table(found)
	return nil
}

func (r *repl) add(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("add <id>")
	}
	b, err := r.sf.Catalog.FetchByID(ctx, args[0])
	if err != nil {
		return err
	}
	r.sf.Cart.Add(b)
	return nil
}

func (r *repl) remove(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usage("remove <id>")
	}
	if r.sf.Cart.Remove(book.Book{ID: args[0]}) {
		r.printf("removed %s\n", args[0])
	}
	return nil
}

func (r *repl) showCart(context.Context, []string) error {
	items := r.sf.Cart.Items()
	if len(items) == 0 {
		r.printf("cart is empty\n")
		return nil
	}
	r.table(items)
	r.printf("subtotal: %s\n", r.sf.Cart.Subtotal().StringFixed(2))
	return nil
}

func (r *repl) clear(context.Context, []string) error {
	r.sf.Cart.Clear()
	return nil
}

func (r *repl) userSession() (*session.Provider, error) {
	if r.sf.Session == nil {
		return nil, errors.New("user sign-in is not configured")
	}
	return r.sf.Session, nil
}

func (r *repl) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("register <email> <password>")
	}
	p, err := r.userSession()
	if err != nil {
		return err
	}
	id, err := p.RegisterUser(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	r.printf("welcome, %s\n", id.Email)
	return nil
}

func (r *repl) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("login <email> <password>")
	}
	p, err := r.userSession()
	if err != nil {
		return err
	}
	id, err := p.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	r.printf("signed in as %s\n", id.Email)
	return nil
}

func (r *repl) logout(ctx context.Context, _ []string) error {
	p, err := r.userSession()
	if err != nil {
		return err
	}
	if err := p.Logout(ctx); err != nil {
		return err
	}
	r.printf("signed out\n")
	return nil
}

func (r *repl) whoami(context.Context, []string) error {
	if r.sf.Session == nil {
		r.printf("anonymous\n")
		return nil
	}
	s := r.sf.Session.Session()
	if s.User == nil {
		r.printf("%s\n", s.State)
		return nil
	}
	name := s.User.DisplayName
	if name == "" {
		name = s.User.Email
	}
	r.printf("%s (%s)\n", name, s.User.UID)
	return nil
}

func (r *repl) adminLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("admin-login <username> <password>")
	}
	if err := r.sf.Admin.Login(ctx, args[0], args[1]); err != nil {
		return err
	}
	r.printf("admin signed in\n")
	return nil
}

func (r *repl) adminLogout(ctx context.Context, _ []string) error {
	if err := r.sf.Admin.Logout(ctx); err != nil {
		return err
	}
	r.printf("admin signed out\n")
	return nil
}

func (r *repl) create(ctx context.Context, args []string) error {
	parts := strings.Split(strings.Join(args, " "), "|")
	if len(parts) != 5 {
		return usage(r.commands["create"].usage)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return errors.New("price must be a number")
	}

	b, err := r.sf.Catalog.Create(ctx, book.Book{
		Title:       parts[0],
		Category:    parts[1],
		NewPrice:    price,
		OldPrice:    price,
		Description: parts[3],
		CoverImage:  parts[4],
	})
	if err != nil {
		return err
	}
	r.printf("created %s\n", b.ID)
	return nil
}

func (r *repl) update(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage(r.commands["update"].usage)
	}
	p, err := parsePatch(args[1:])
	if err != nil {
		return err
	}
	b, err := r.sf.Catalog.Update(ctx, args[0], p)
	if err != nil {
		return err
	}
	r.printf("updated %s\n", b.ID)
	return nil
}

func (r *repl) del(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	if err := r.sf.Catalog.Delete(ctx, args[0]); err != nil {
		return err
	}
	r.printf("deleted %s\n", args[0])
	return nil
}

// parsePatch reads field=value pairs. Values may contain spaces when later
// words carry no '='.
func parsePatch(args []string) (book.Patch, error) {
	var p book.Patch
	var field string
	var value []string

	flush := func() error {
		if field == "" {
			return nil
		}
		v := strings.Join(value, " ")
		switch field {
		case "title":
			p.Title = &v
		case "description":
			p.Description = &v
		case "category":
			p.Category = &v
		case "cover":
			p.CoverImage = &v
		case "price", "oldprice":
			d, err := decimal.NewFromString(v)
			if err != nil {
				return errors.New(field + " must be a number")
			}
			if field == "price" {
				p.NewPrice = &d
			} else {
				p.OldPrice = &d
			}
		case "trending":
			t, err := strconv.ParseBool(v)
			if err != nil {
				return errors.New("trending must be true or false")
			}
			p.Trending = &t
		default:
			return errors.New("unknown field " + field)
		}
		return nil
	}

	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			if field == "" {
				return book.Patch{}, errors.New("expected field=value, got " + a)
			}
			value = append(value, a)
			continue
		}
		if err := flush(); err != nil {
			return book.Patch{}, err
		}
		field, value = strings.ToLower(k), []string{v}
	}
	if err := flush(); err != nil {
		return book.Patch{}, err
	}
	return p, nil
}

func (r *repl) table(books []book.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE")
	for _, b := range books {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Category, b.NewPrice.StringFixed(2))
	}
	_ = tw.Flush()
}
