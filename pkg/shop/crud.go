package shop

import (
	"context"
	"time"

	"github.com/stoneacre/cobble/pkg/builder"
	"github.com/stoneacre/cobble/pkg/session"
)

// CreateUser inserts a user and commits.
func CreateUser(ctx context.Context, s *session.Session, username string) (*User, error) {
	user := &User{Username: username}
	s.Add(user)
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateProfile inserts a profile for an existing user and commits.
// The user_id unique constraint rejects a second profile.
func CreateProfile(ctx context.Context, s *session.Session, userID int64, first, last, bio *string) (*Profile, error) {
	profile := &Profile{
		FirstName: first,
		LastName:  last,
		Bio:       bio,
		UserID:    userID,
	}
	s.Add(profile)
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return profile, nil
}

// CreatePosts inserts one post per title for the user, in one commit.
func CreatePosts(ctx context.Context, s *session.Session, userID int64, titles ...string) ([]*Post, error) {
	posts := make([]*Post, 0, len(titles))
	for _, title := range titles {
		post := &Post{Title: title, UserID: userID}
		posts = append(posts, post)
		s.Add(post)
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreateOrder inserts an order and commits. CreatedAt is fixed at
// creation time and never updated afterwards.
func CreateOrder(ctx context.Context, s *session.Session, promoCode *string) (*Order, error) {
	order := &Order{
		PromoCode: promoCode,
		CreatedAt: time.Now().UTC(),
	}
	s.Add(order)
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// CreateProduct inserts a product and commits.
func CreateProduct(ctx context.Context, s *session.Session, name string, price int64, description string) (*Product, error) {
	product := &Product{Name: name, Price: price, Description: description}
	s.Add(product)
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return product, nil
}

// GetUserByUsername returns the user with that username, or nil when
// no such user exists.
func GetUserByUsername(ctx context.Context, s *session.Session, username string) (*User, error) {
	return session.Select[User](s).
		Where(builder.Eq("username", username)).
		One(ctx)
}

// UsersWithProfiles lists all users with their profile join-fetched,
// stable id order.
func UsersWithProfiles(ctx context.Context, s *session.Session) ([]*User, error) {
	return session.Select[User](s).
		OrderByAsc("id").
		Load(session.Join("Profile")).
		All(ctx)
}

// UsersWithPosts lists all users with their posts batch-fetched in a
// single secondary query.
func UsersWithPosts(ctx context.Context, s *session.Session) ([]*User, error) {
	return session.Select[User](s).
		OrderByAsc("id").
		Load(session.Batch("Posts")).
		All(ctx)
}

// UsersWithPostsAndProfiles lists all users with the profile folded
// into the base query and the posts batch-fetched.
func UsersWithPostsAndProfiles(ctx context.Context, s *session.Session) ([]*User, error) {
	return session.Select[User](s).
		OrderByAsc("id").
		Load(session.Join("Profile"), session.Batch("Posts")).
		All(ctx)
}

// PostsWithAuthors lists all posts with their author join-fetched.
func PostsWithAuthors(ctx context.Context, s *session.Session) ([]*Post, error) {
	return session.Select[Post](s).
		OrderByAsc("id").
		Load(session.Join("User")).
		All(ctx)
}

// ProfilesByUsername returns the profile whose user carries the
// username, with the user join-fetched and the user's posts
// batch-fetched off the joined rows.
func ProfilesByUsername(ctx context.Context, s *session.Session, username string) (*Profile, error) {
	return session.Select[Profile](s).
		Where(builder.Eq("users.username", username)).
		Load(session.Join("User", session.Batch("Posts"))).
		One(ctx)
}

// ListOrdersWithProducts lists all orders in id order. The plain view
// batch-fetches order.Products through the link table; the detailed
// view batch-fetches the association rows with their product folded
// in, so either way the listing costs the base query plus exactly one
// more regardless of order count.
func ListOrdersWithProducts(ctx context.Context, s *session.Session, detailed bool) ([]*Order, error) {
	q := session.Select[Order](s).OrderByAsc("id")
	if detailed {
		q = q.Load(session.Batch("ProductDetails", session.Join("Product")))
	} else {
		q = q.Load(session.Batch("Products"))
	}
	return q.All(ctx)
}

// AddAssociation links an existing order and product with an explicit
// count and unit price, commits, and returns the created row.
func AddAssociation(ctx context.Context, s *session.Session, orderID, productID int64, count int, unitPrice int64) (*OrderProductAssociation, error) {
	assoc := &OrderProductAssociation{
		OrderID:   orderID,
		ProductID: productID,
		Count:     count,
		UnitPrice: unitPrice,
	}
	s.Add(assoc)
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return assoc, nil
}

// AddGiftToOrders creates a zero-price gift product and appends a
// detailed line for it to every existing order, in one commit.
func AddGiftToOrders(ctx context.Context, s *session.Session) (*Product, error) {
	gift := &Product{Name: "Gift", Description: "a small thank-you", Price: 0}
	s.Add(gift)

	orders, err := session.Select[Order](s).OrderByAsc("id").All(ctx)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		AppendProductDetail(s, order, &OrderProductAssociation{
			Product:   gift,
			Count:     1,
			UnitPrice: gift.Price,
		})
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return gift, nil
}
