package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

const staffCollection = "users"

// StaffRepository implements repositories.StaffRepository. Documents are keyed by auth uid.
type StaffRepository struct {
	staff *pfirestore.Collection[domain.StaffMember]
}

// NewStaffRepository constructs a Firestore-backed staff repository.
func NewStaffRepository(provider *pfirestore.Provider) (*StaffRepository, error) {
	if provider == nil {
		return nil, errors.New("staff repository requires firestore provider")
	}
	return &StaffRepository{
		staff: pfirestore.NewCollection(provider, staffCollection, encodeStaff, decodeStaffSnapshot),
	}, nil
}

func (r *StaffRepository) Get(ctx context.Context, staffID string) (domain.StaffMember, error) {
	if r == nil || r.staff == nil {
		return domain.StaffMember{}, errors.New("staff repository not initialised")
	}
	doc, err := r.staff.Get(ctx, strings.TrimSpace(staffID))
	if err != nil {
		return domain.StaffMember{}, err
	}
	return doc.Data, nil
}

// Create writes the profile under member.ID.
func (r *StaffRepository) Create(ctx context.Context, member domain.StaffMember) error {
	if r == nil || r.staff == nil {
		return errors.New("staff repository not initialised")
	}
	if strings.TrimSpace(member.ID) == "" {
		return errors.New("staff id is required")
	}
	return r.staff.Set(ctx, member.ID, member)
}

// Subscribe streams staff filtered by role. Results are sorted by name in
// memory because an "in" filter cannot be combined with ordering on another field
// without a composite index.
func (r *StaffRepository) Subscribe(ctx context.Context, roles ...domain.StaffRole) (*repositories.Subscription[domain.StaffMember], error) {
	if r == nil || r.staff == nil {
		return nil, errors.New("staff repository not initialised")
	}
	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, string(role))
	}
	build := func(q firestore.Query) firestore.Query {
		if len(values) == 0 {
			return q
		}
		return q.Where(fieldStaffRole, "in", values)
	}
	return repositories.NewSubscription(ctx, func(ctx context.Context, emit func(repositories.SnapshotEvent[domain.StaffMember]) bool) {
		r.staff.Watch(ctx, build, func(docs []pfirestore.Document[domain.StaffMember], err error) bool {
			if err != nil {
				return emit(repositories.SnapshotEvent[domain.StaffMember]{Err: err})
			}
			members := make([]domain.StaffMember, 0, len(docs))
			for _, doc := range docs {
				members = append(members, doc.Data)
			}
			sortStaffByName(members)
			return emit(repositories.SnapshotEvent[domain.StaffMember]{Items: members})
		})
	}), nil
}

func sortStaffByName(members []domain.StaffMember) {
	slices.SortStableFunc(members, func(a, b domain.StaffMember) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
}
