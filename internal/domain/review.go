package domain

// ReviewRole is the direction of a review.
type ReviewRole string

const (
	RoleTenantToLandlord ReviewRole = "tenant_to_landlord"
	RoleLandlordToTenant ReviewRole = "landlord_to_tenant"
)

// Valid reports whether r is a known role.
func (r ReviewRole) Valid() bool {
	return r == RoleTenantToLandlord || r == RoleLandlordToTenant
}

// Counterpart is the opposite review direction.
func (r ReviewRole) Counterpart() ReviewRole {
	if r == RoleTenantToLandlord {
		return RoleLandlordToTenant
	}
	return RoleTenantToLandlord
}

// ReviewRoleFor resolves the role a user writes in for a tenancy from the
// tenancy's fixed identities. ok is false for non-parties.
func ReviewRoleFor(t *Tenancy, userID string) (role ReviewRole, revieweeID string, ok bool) {
	switch {
	case userID == "":
		return "", "", false
	case userID == t.TenantID:
		return RoleTenantToLandlord, t.LandlordID, true
	case userID == t.LandlordID:
		return RoleLandlordToTenant, t.TenantID, true
	}
	return "", "", false
}

// Rating bounds and the baseline used for checklist-scored reviews.
const (
	MinRating      = 1
	MaxRating      = 5
	BaselineRating = 3
)

type flagVocabulary struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

func vocab(pos, neg []string) flagVocabulary {
	v := flagVocabulary{positive: map[string]struct{}{}, negative: map[string]struct{}{}}
	for _, f := range pos {
		v.positive[f] = struct{}{}
	}
	for _, f := range neg {
		v.negative[f] = struct{}{}
	}
	return v
}

var flagVocabularies = map[ReviewRole]flagVocabulary{
	RoleTenantToLandlord: vocab(
		[]string{"responsive", "maintenance_good", "accurate_listing", "good_communication", "fair_deposit"},
		[]string{"unresponsive", "maintenance_poor", "inaccurate_listing", "poor_communication", "unfair_deposit"},
	),
	RoleLandlordToTenant: vocab(
		[]string{"paid_on_time", "respectful", "tidy", "good_communication", "quiet"},
		[]string{"late_payment", "property_damage", "untidy", "poor_communication", "noisy"},
	),
}

// KnownFlag reports whether flag belongs to the role's checklist.
func KnownFlag(role ReviewRole, flag string) bool {
	v, ok := flagVocabularies[role]
	if !ok {
		return false
	}
	if _, ok := v.positive[flag]; ok {
		return true
	}
	_, ok = v.negative[flag]
	return ok
}

// ScoreFlags derives an overall rating from checklist flags: the baseline plus
// one per positive flag, minus one per negative flag, clamped to [1,5].
// Unknown flags do not move the score.
func ScoreFlags(role ReviewRole, flags []string) int {
	v := flagVocabularies[role]
	score := BaselineRating
	for _, f := range flags {
		if _, ok := v.positive[f]; ok {
			score++
		}
		if _, ok := v.negative[f]; ok {
			score--
		}
	}
	if score < MinRating {
		return MinRating
	}
	if score > MaxRating {
		return MaxRating
	}
	return score
}
