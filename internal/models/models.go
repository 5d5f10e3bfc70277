package models

import (
	"time"

	"github.com/google/uuid"
)

type PlanType string

type CatalogKind string

type ImportMode string

type ImportStatus string

type MatchType string

const (
	PlanTypeNutrition PlanType = "nutrition"
	PlanTypeWorkout   PlanType = "workout"

	CatalogKindFood     CatalogKind = "food"
	CatalogKindExercise CatalogKind = "exercise"

	ImportModeAuto   ImportMode = "auto"
	ImportModeReview ImportMode = "review"

	ImportStatusPending    ImportStatus = "pending"
	ImportStatusValidating ImportStatus = "validating"
	ImportStatusParsing    ImportStatus = "parsing"
	ImportStatusMatching   ImportStatus = "matching"
	ImportStatusReviewing  ImportStatus = "reviewing"
	ImportStatusConverting ImportStatus = "converting"
	ImportStatusSaving     ImportStatus = "saving"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusError      ImportStatus = "error"

	MatchTypeExact      MatchType = "exact"
	MatchTypeAlias      MatchType = "alias"
	MatchTypeNormalized MatchType = "normalized"
	MatchTypeFuzzy      MatchType = "fuzzy"
	MatchTypeManual     MatchType = "manual"
	MatchTypeNone       MatchType = "none"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Name           *string   `json:"name,omitempty"`
	UnlimitedUsage bool      `json:"unlimited_usage"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CatalogItem struct {
	ID             uuid.UUID   `json:"id"`
	Kind           CatalogKind `json:"kind"`
	Name           string      `json:"name"`
	NormalizedName string      `json:"normalized_name"`
	Aliases        []string    `json:"aliases,omitempty"`
	CaloriesPer100 *float64    `json:"calories_per_100g,omitempty"`
	ProteinPer100  *float64    `json:"protein_per_100g,omitempty"`
	CarbsPer100    *float64    `json:"carbs_per_100g,omitempty"`
	FatPer100      *float64    `json:"fat_per_100g,omitempty"`
	MuscleGroup    *string     `json:"muscle_group,omitempty"`
	Equipment      *string     `json:"equipment,omitempty"`
	IsApproved     bool        `json:"is_approved"`
	AutoCreated    bool        `json:"auto_created"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type Plan struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	PlanType    PlanType   `json:"plan_type"`
	Title       string     `json:"title"`
	Locale      *string    `json:"locale,omitempty"`
	ImportJobID *uuid.UUID `json:"import_job_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type PlanWeek struct {
	ID         uuid.UUID `json:"id"`
	PlanID     uuid.UUID `json:"plan_id"`
	WeekNumber int       `json:"week_number"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}

type PlanDay struct {
	ID        uuid.UUID  `json:"id"`
	WeekID    uuid.UUID  `json:"week_id"`
	DayNumber int        `json:"day_number"`
	Title     string     `json:"title"`
	Notes     *string    `json:"notes,omitempty"`
	Totals    PlanTotals `json:"totals"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
}

type PlanEntry struct {
	ID        uuid.UUID  `json:"id"`
	DayID     uuid.UUID  `json:"day_id"`
	Title     string     `json:"title"`
	TimeHint  *string    `json:"time_hint,omitempty"`
	Totals    PlanTotals `json:"totals"`
	SortOrder int        `json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
}

type PlanItem struct {
	ID            uuid.UUID `json:"id"`
	EntryID       uuid.UUID `json:"entry_id"`
	CatalogItemID uuid.UUID `json:"catalog_item_id"`
	SourceName    string    `json:"source_name"`
	Quantity      float64   `json:"quantity,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	CaloriesKcal  float64   `json:"calories_kcal,omitempty"`
	ProteinG      float64   `json:"protein_g,omitempty"`
	CarbsG        float64   `json:"carbs_g,omitempty"`
	FatG          float64   `json:"fat_g,omitempty"`
	Sets          int       `json:"sets,omitempty"`
	Reps          int       `json:"reps,omitempty"`
	WeightKg      float64   `json:"weight_kg,omitempty"`
	RestSeconds   int       `json:"rest_seconds,omitempty"`
	SortOrder     int       `json:"sort_order"`
	CreatedAt     time.Time `json:"created_at"`
}

type PlanTotals struct {
	CaloriesKcal float64 `json:"calories_kcal"`
	ProteinG     float64 `json:"protein_g"`
	CarbsG       float64 `json:"carbs_g"`
	FatG         float64 `json:"fat_g"`
	VolumeKg     float64 `json:"volume_kg"`
	SetsCount    int     `json:"sets_count"`
}

// Add суммирует вклад одной позиции плана в агрегат.
func (t *PlanTotals) Add(item PlanItem) {
	t.CaloriesKcal += item.CaloriesKcal
	t.ProteinG += item.ProteinG
	t.CarbsG += item.CarbsG
	t.FatG += item.FatG
	t.VolumeKg += float64(item.Sets) * float64(item.Reps) * item.WeightKg
	t.SetsCount += item.Sets
}

// Merge добавляет к агрегату уже посчитанный агрегат нижнего уровня.
func (t *PlanTotals) Merge(other PlanTotals) {
	t.CaloriesKcal += other.CaloriesKcal
	t.ProteinG += other.ProteinG
	t.CarbsG += other.CarbsG
	t.FatG += other.FatG
	t.VolumeKg += other.VolumeKg
	t.SetsCount += other.SetsCount
}

type DraftPlan struct {
	Title    string      `json:"title"`
	PlanType PlanType    `json:"plan_type"`
	Locale   *string     `json:"locale,omitempty"`
	Weeks    []DraftWeek `json:"weeks"`
}

type DraftWeek struct {
	WeekNumber int        `json:"week_number"`
	Days       []DraftDay `json:"days"`
}

type DraftDay struct {
	DayNumber int          `json:"day_number"`
	Title     string       `json:"title"`
	Notes     *string      `json:"notes,omitempty"`
	Entries   []DraftEntry `json:"entries"`
}

type DraftEntry struct {
	Title    string      `json:"title"`
	TimeHint *string     `json:"time_hint,omitempty"`
	Items    []DraftItem `json:"items"`
}

type DraftItem struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity,omitempty"`
	Unit         string  `json:"unit,omitempty"`
	CaloriesKcal float64 `json:"calories_kcal,omitempty"`
	ProteinG     float64 `json:"protein_g,omitempty"`
	CarbsG       float64 `json:"carbs_g,omitempty"`
	FatG         float64 `json:"fat_g,omitempty"`
	Sets         int     `json:"sets,omitempty"`
	Reps         int     `json:"reps,omitempty"`
	WeightKg     float64 `json:"weight_kg,omitempty"`
	RestSeconds  int     `json:"rest_seconds,omitempty"`
}

type PlanTree struct {
	Plan  Plan
	Weeks []PlanTreeWeek
}

type PlanTreeWeek struct {
	Week PlanWeek
	Days []PlanTreeDay
}

type PlanTreeDay struct {
	Day     PlanDay
	Entries []PlanTreeEntry
}

type PlanTreeEntry struct {
	Entry PlanEntry
	Items []PlanItem
}

type MatchResult struct {
	Query       string           `json:"query"`
	Kind        CatalogKind      `json:"kind"`
	MatchedID   *uuid.UUID       `json:"matched_id,omitempty"`
	MatchedName string           `json:"matched_name,omitempty"`
	Confidence  float64          `json:"confidence"`
	MatchType   MatchType        `json:"match_type"`
	AutoCreated bool             `json:"auto_created,omitempty"`
	Candidates  []MatchCandidate `json:"candidates,omitempty"`
}

type MatchCandidate struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
}

type ImportStats struct {
	FilesProcessed  int   `json:"files_processed"`
	EntitiesTotal   int   `json:"entities_total"`
	EntitiesMatched int   `json:"entities_matched"`
	EntitiesCreated int   `json:"entities_created"`
	CreditsUsed     int64 `json:"credits_used"`
}

type ImportJob struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	Status    ImportStatus  `json:"status"`
	PlanType  PlanType      `json:"plan_type"`
	Mode      ImportMode    `json:"mode"`
	Locale    *string       `json:"locale,omitempty"`
	FileCount int           `json:"file_count"`
	Draft     *DraftPlan    `json:"draft,omitempty"`
	Matches   []MatchResult `json:"matches,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Stats     ImportStats   `json:"stats"`
	PlanID    *uuid.UUID    `json:"plan_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type CreditEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Delta        int64      `json:"delta"`
	BalanceAfter int64      `json:"balance_after"`
	Reason       string     `json:"reason"`
	ImportJobID  *uuid.UUID `json:"import_job_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type RefreshToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TokenHash  string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}
