package draft

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/litter-report/internal/report"
)

// fakeDynamo keeps items keyed by PK+SK.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(m map[string]types.AttributeValue) string {
	pk := m["PK"].(*types.AttributeValueMemberS).Value
	sk := m["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoPutSetsKeysAndTTL(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamo(fake, "drafts")
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	d := &report.Draft{ID: "d1", Status: report.StatusDraft, CreatedAt: created, UpdatedAt: created}
	if err := store.PutDraft(context.Background(), "session-1", d); err != nil {
		t.Fatalf("PutDraft() error = %v", err)
	}

	item, ok := fake.items["DRAFT#session-1|META"]
	if !ok {
		t.Fatalf("item not stored under DRAFT#session-1/META; have %v", fake.items)
	}
	ttl := item["expiresAt"].(*types.AttributeValueMemberN).Value
	want := strconv.FormatInt(created.Add(Retention).Unix(), 10)
	if ttl != want {
		t.Errorf("expiresAt = %s, want %s", ttl, want)
	}
}

func TestDynamoRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDynamo(newFakeDynamo(), "drafts")
	now := time.Now().UTC().Truncate(time.Second)

	in := &report.Draft{
		ID:        "d2",
		Status:    report.StatusFailed,
		Photo:     &report.Photo{ID: "p", Key: "photos/p.jpg", Size: 1234},
		Location:  &report.Location{Latitude: 53.2, Longitude: 6.5, Address: "Vismarkt", WithinAllowedRegion: true},
		Comment:   "near the bins",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.PutDraft(ctx, "k", in); err != nil {
		t.Fatalf("PutDraft() error = %v", err)
	}

	got, err := store.GetDraft(ctx, "k")
	if err != nil {
		t.Fatalf("GetDraft() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetDraft() = nil, want draft")
	}
	if got.Status != report.StatusFailed || got.Comment != "near the bins" {
		t.Errorf("GetDraft() = %+v", got)
	}
	if got.Photo == nil || got.Photo.Size != 1234 {
		t.Errorf("Photo = %+v, want size 1234", got.Photo)
	}
	if got.Location == nil || got.Location.Address != "Vismarkt" {
		t.Errorf("Location = %+v", got.Location)
	}
	if got.Contact != nil {
		t.Errorf("Contact = %+v, want nil (anonymous)", got.Contact)
	}

	if err := store.DeleteDraft(ctx, "k"); err != nil {
		t.Fatalf("DeleteDraft() error = %v", err)
	}
	got, err = store.GetDraft(ctx, "k")
	if err != nil || got != nil {
		t.Errorf("GetDraft() after delete = %+v, %v; want nil, nil", got, err)
	}
}
