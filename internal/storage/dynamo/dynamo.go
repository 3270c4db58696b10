package dynamo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/avstrong/hotelbooking/internal/booking"
	"github.com/avstrong/hotelbooking/internal/logger"
)

// maxTransactItems is the DynamoDB limit for a single TransactWriteItems call.
const maxTransactItems = 100

var (
	ErrNoTransaction = errors.New("write outside of a transaction")
	ErrMalformedItem = errors.New("malformed item")
	ErrConflict      = errors.New("hotel was modified concurrently")
	ErrTooManyItems  = errors.New("too many items in one transaction")
)

type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type Config struct {
	L      *logger.Logger
	Client API
	Table  string
	Now    func() time.Time
}

// Store keeps hotels and bookings in one table. Hotel items carry a version
// that every committed booking change bumps, so two instances that both read
// the same hotel cannot both commit.
type Store struct {
	l      *logger.Logger
	client API
	table  *string
	now    func() time.Time
}

type transaction struct {
	mu            sync.Mutex
	items         []types.TransactWriteItem
	hotelVersions map[string]int64
}

type trxKey struct{}

func New(conf Config) *Store {
	now := conf.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		l:      conf.L,
		client: conf.Client,
		table:  aws.String(conf.Table),
		now:    now,
	}
}

func (s *Store) BeginTransaction(ctx context.Context, _ string) (context.Context, error) {
	//nolint:exhaustruct
	return context.WithValue(ctx, trxKey{}, &transaction{hotelVersions: make(map[string]int64)}), nil
}

func (s *Store) CommitTransaction(ctx context.Context) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	if len(trx.items) == 0 {
		return nil
	}

	items := slices.Clone(trx.items)

	for hotelID, version := range trx.hotelVersions {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           s.table,
				Key:                 hotelKey(hotelID),
				UpdateExpression:    aws.String("SET #v = :next"),
				ConditionExpression: aws.String("#v = :seen"),
				ExpressionAttributeNames: map[string]string{
					"#v": attrVersion,
				},
				ExpressionAttributeValues: item{
					":next": numValue(version + 1),
					":seen": numValue(version),
				},
			},
		})
	}

	if len(items) > maxTransactItems {
		return fmt.Errorf("%d items: %w", len(items), ErrTooManyItems)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return fmt.Errorf("%w: %v", ErrConflict, canceled.ErrorMessage())
	}

	if err != nil {
		return fmt.Errorf("transact write items: %w", err)
	}

	trx.items = nil

	return nil
}

func (s *Store) RollbackTransaction(ctx context.Context) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	trx.items = nil

	return nil
}

func (s *Store) GetHotel(ctx context.Context, id string) (booking.Hotel, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table,
		Key:            hotelKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return booking.Hotel{}, fmt.Errorf("get hotel %s: %w", id, err)
	}

	if len(out.Item) == 0 {
		return booking.Hotel{}, booking.ErrRecordNotFound
	}

	h, version, err := parseHotel(out.Item)
	if err != nil {
		return booking.Hotel{}, fmt.Errorf("hotel %s: %w", id, err)
	}

	if trx, ok := trxFromContext(ctx); ok {
		trx.mu.Lock()
		trx.hotelVersions[h.ID] = version
		trx.mu.Unlock()
	}

	return h, nil
}

func (s *Store) ListHotels(ctx context.Context) ([]booking.Hotel, error) {
	type ordered struct {
		hotel     booking.Hotel
		createdAt int64
	}

	var res []ordered

	err := s.scan(ctx, "SK = :sk", item{":sk": strValue(hotelInfoSK)}, func(it item) error {
		h, _, err := parseHotel(it)
		if err != nil {
			return err
		}

		createdAt, _ := num(it, attrCreatedAt)
		res = append(res, ordered{hotel: h, createdAt: createdAt})

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(res, func(a, b ordered) int {
		if a.createdAt != b.createdAt {
			return cmp.Compare(a.createdAt, b.createdAt)
		}

		return cmp.Compare(a.hotel.ID, b.hotel.ID)
	})

	hotels := make([]booking.Hotel, 0, len(res))
	for _, o := range res {
		hotels = append(hotels, o.hotel)
	}

	return hotels, nil
}

func (s *Store) SaveHotels(ctx context.Context, hotels []booking.Hotel) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	for _, h := range hotels {
		trx.items = append(trx.items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: s.table,
				Key:       hotelKey(h.ID),
				UpdateExpression: aws.String("SET #id = :id, #name = :name, #loc = :loc, #rooms = :rooms, " +
					"#v = if_not_exists(#v, :zero), #created = if_not_exists(#created, :now)"),
				ExpressionAttributeNames: map[string]string{
					"#id":      attrID,
					"#name":    attrName,
					"#loc":     attrLocation,
					"#rooms":   attrRooms,
					"#v":       attrVersion,
					"#created": attrCreatedAt,
				},
				ExpressionAttributeValues: item{
					":id":    strValue(h.ID),
					":name":  strValue(h.Name),
					":loc":   strValue(h.Location),
					":rooms": numValue(int64(h.TotalRooms)),
					":zero":  numValue(0),
					":now":   numValue(s.now().UnixNano()),
				},
			},
		})
	}

	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	hotelID, err := s.hotelOfBooking(ctx, id)
	if err != nil {
		return booking.Booking{}, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table,
		Key:            bookingKey(hotelID, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return booking.Booking{}, fmt.Errorf("get booking %s: %w", id, err)
	}

	if len(out.Item) == 0 {
		return booking.Booking{}, booking.ErrRecordNotFound
	}

	b, _, err := parseBooking(out.Item)

	return b, err
}

func (s *Store) ListBookings(ctx context.Context) ([]booking.Booking, error) {
	var res []orderedBooking

	err := s.scan(ctx, "begins_with(SK, :prefix)", item{":prefix": strValue(bookingPrefix)}, func(it item) error {
		b, createdAt, err := parseBooking(it)
		if err != nil {
			return err
		}

		res = append(res, orderedBooking{booking: b, createdAt: createdAt})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sortBookings(res), nil
}

func (s *Store) ListBookingsByHotel(ctx context.Context, hotelID string) ([]booking.Booking, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              s.table,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: item{
			":pk":     strValue(hotelPrefix + hotelID),
			":prefix": strValue(bookingPrefix),
		},
		ConsistentRead: aws.Bool(true),
	})

	var res []orderedBooking

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query bookings of hotel %s: %w", hotelID, err)
		}

		for _, it := range page.Items {
			b, createdAt, err := parseBooking(it)
			if err != nil {
				return nil, err
			}

			res = append(res, orderedBooking{booking: b, createdAt: createdAt})
		}
	}

	return sortBookings(res), nil
}

func (s *Store) InsertBooking(ctx context.Context, b booking.Booking) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	trx.items = append(trx.items,
		types.TransactWriteItem{Put: &types.Put{
			TableName:           s.table,
			Item:                bookingItem(b, s.now()),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}},
		types.TransactWriteItem{Put: &types.Put{
			TableName:           s.table,
			Item:                refItem(b),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		}},
	)

	return nil
}

func (s *Store) ReplaceBooking(ctx context.Context, b booking.Booking) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	trx.items = append(trx.items, types.TransactWriteItem{Update: &types.Update{
		TableName:           s.table,
		Key:                 bookingKey(b.HotelID, b.ID),
		UpdateExpression:    aws.String("SET #in = :in, #out = :out, #rooms = :rooms"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#in":    attrCheckIn,
			"#out":   attrCheckOut,
			"#rooms": attrBooked,
		},
		ExpressionAttributeValues: item{
			":in":    strValue(b.Range.CheckIn.Format(booking.DateLayout)),
			":out":   strValue(b.Range.CheckOut.Format(booking.DateLayout)),
			":rooms": numValue(int64(b.Rooms)),
		},
	}})

	return nil
}

func (s *Store) RemoveBooking(ctx context.Context, id string) error {
	trx, ok := trxFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}

	hotelID, err := s.hotelOfBooking(ctx, id)
	if err != nil {
		return err
	}

	trx.mu.Lock()
	defer trx.mu.Unlock()

	trx.items = append(trx.items,
		types.TransactWriteItem{Delete: &types.Delete{
			TableName:           s.table,
			Key:                 bookingKey(hotelID, id),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		}},
		types.TransactWriteItem{Delete: &types.Delete{
			TableName: s.table,
			Key:       refKey(id),
		}},
	)

	return nil
}

func (s *Store) hotelOfBooking(ctx context.Context, id string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table,
		Key:            refKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get booking ref %s: %w", id, err)
	}

	if len(out.Item) == 0 {
		return "", booking.ErrRecordNotFound
	}

	return str(out.Item, attrHotelID)
}

func (s *Store) scan(ctx context.Context, filter string, values item, fn func(it item) error) error {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 s.table,
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", aws.ToString(s.table), err)
		}

		for _, it := range page.Items {
			if err = fn(it); err != nil {
				return err
			}
		}
	}

	return nil
}

type orderedBooking struct {
	booking   booking.Booking
	createdAt int64
}

func sortBookings(res []orderedBooking) []booking.Booking {
	slices.SortFunc(res, func(a, b orderedBooking) int {
		if a.createdAt != b.createdAt {
			return cmp.Compare(a.createdAt, b.createdAt)
		}

		return cmp.Compare(a.booking.ID, b.booking.ID)
	})

	bookings := make([]booking.Booking, 0, len(res))
	for _, o := range res {
		bookings = append(bookings, o.booking)
	}

	return bookings
}

func trxFromContext(ctx context.Context) (*transaction, bool) {
	trx, ok := ctx.Value(trxKey{}).(*transaction)

	return trx, ok && trx != nil
}
