package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"microcred/assessment-engine/internal/models"
)

const (
	keywordWeight     = 0.6
	embeddingWeight   = 0.4
	missedTopicBoost  = 0.1
	durationPrefBoost = 0.05
	minRelevanceScore = 0.1
	fallbackRelevance = 0.5
	defaultTopK       = 5
	essayKeywordLimit = 5
	missedTopicRatio  = 0.6
)

// profileDimensions are excluded from missed-topic extraction; they carry
// preference answers, not technical competence.
var profileDimensions = map[string]struct{}{
	"experience":         {},
	"experience-level":   {},
	"tech-preferences":   {},
	"content-duration":   {},
	"payment-preference": {},
}

// CourseMatch is one ranked retrieval hit.
type CourseMatch struct {
	CourseID       string
	Title          string
	URL            string
	RelevanceScore float64
	MatchReason    string
	Metadata       map[string]interface{}
}

// RetrievalResult is the outcome of one retrieval run. Degraded marks the
// static fallback path; retrieval itself never fails.
type RetrievalResult struct {
	Query    string
	Matches  []CourseMatch
	Degraded bool
	Reason   string
}

// RetrievalEngine ranks catalog courses against a role and assessment
// signals. Deterministic: identical inputs always produce identical ranked
// output, ties broken by course id ascending.
type RetrievalEngine struct {
	catalog  *CourseCatalog
	topK     int
	minScore float64
	logger   *zap.Logger
}

func NewRetrievalEngine(catalog *CourseCatalog, topK int, minScore float64, logger *zap.Logger) *RetrievalEngine {
	if topK <= 0 {
		topK = defaultTopK
	}
	if minScore <= 0 {
		minScore = minRelevanceScore
	}
	return &RetrievalEngine{catalog: catalog, topK: topK, minScore: minScore, logger: logger}
}

// Retrieve ranks courses for the role and signals. Falls back to the
// role's subject list when nothing clears the relevance threshold.
func (e *RetrievalEngine) Retrieve(
	roleSlug string,
	profileSignals map[string]string,
	essayKeywords []string,
	missedTopics []string,
	topK int,
) RetrievalResult {
	if topK <= 0 {
		topK = e.topK
	}

	query := e.buildQuery(roleSlug, profileSignals, essayKeywords, missedTopics)
	matches := e.rankCourses(query, profileSignals, missedTopics, topK)

	if len(matches) == 0 {
		e.logger.Info("retrieval fallback activated",
			zap.String("role_slug", roleSlug),
			zap.String("query", query),
		)
		return RetrievalResult{
			Query:    query,
			Matches:  e.fallbackMatches(roleSlug, topK),
			Degraded: true,
			Reason:   "no_matches",
		}
	}

	return RetrievalResult{Query: query, Matches: matches}
}

// buildQuery concatenates signal keywords by priority: stated tech
// preferences first, then missed topics, essay keywords, and finally
// generic role keywords.
func (e *RetrievalEngine) buildQuery(
	roleSlug string,
	profileSignals map[string]string,
	essayKeywords []string,
	missedTopics []string,
) string {
	parts := make([]string, 0, 16)

	techPrefs := parseTechPreferences(profileSignals["tech-preferences"])
	if len(techPrefs) > 0 {
		parts = append(parts, headOf(techPrefs, 5)...)
		// Repeated so preferences outweigh generic role terms.
		parts = append(parts, headOf(techPrefs, 3)...)
	}

	parts = append(parts, headOf(missedTopics, 5)...)
	parts = append(parts, headOf(essayKeywords, 3)...)

	role := roleKeywords[roleSlug]
	if len(techPrefs) == 0 {
		parts = append(parts, headOf(role, 5)...)
	} else {
		parts = append(parts, headOf(role, 2)...)
	}

	return strings.Join(parts, " ")
}

func (e *RetrievalEngine) rankCourses(
	query string,
	profileSignals map[string]string,
	missedTopics []string,
	topK int,
) []CourseMatch {
	queryTerms := make([]string, 0)
	for _, term := range strings.Fields(query) {
		if len(strings.TrimSpace(term)) > 2 {
			queryTerms = append(queryTerms, strings.TrimSpace(term))
		}
	}
	if len(queryTerms) == 0 {
		return nil
	}

	queryVec := hashEmbedding(tokenize(query))
	paymentPref := strings.ToLower(strings.TrimSpace(profileSignals["payment-preference"]))
	durationPref := strings.ToLower(strings.TrimSpace(profileSignals["content-duration"]))

	type scored struct {
		score  float64
		course catalogCourse
		reason string
	}
	candidates := make([]scored, 0)

	for _, course := range e.catalog.courses {
		if excludedByPayment(course, paymentPref) {
			continue
		}

		matched, hits := matchedTerms(course.text, queryTerms)
		keywordScore := float64(hits) / float64(len(queryTerms))
		embeddingScore := cosineSimilarity(queryVec, course.vector)

		score := keywordWeight*keywordScore + embeddingWeight*embeddingScore
		topicHit := firstCommonTag(course.tags, missedTopics)
		if topicHit != "" {
			score += missedTopicBoost
		}
		durationHit := levelMatchesDuration(course.Level, durationPref)
		if durationHit {
			score += durationPrefBoost
		}

		if score < e.minScore {
			continue
		}

		candidates = append(candidates, scored{
			score:  score,
			course: course,
			reason: buildMatchReason(course, matched, topicHit, durationHit, paymentPref),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].course.ID < candidates[j].course.ID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]CourseMatch, 0, len(candidates))
	for _, candidate := range candidates {
		matches = append(matches, CourseMatch{
			CourseID:       candidate.course.ID,
			Title:          candidate.course.Title,
			URL:            candidate.course.URL,
			RelevanceScore: roundTo(candidate.score, 3),
			MatchReason:    candidate.reason,
			Metadata:       courseMetadata(candidate.course),
		})
	}
	return matches
}

func (e *RetrievalEngine) fallbackMatches(roleSlug string, topK int) []CourseMatch {
	subject := roleFallbackSubjects[roleSlug]
	if subject == "" {
		subject = "Web Development"
	}

	matches := make([]CourseMatch, 0, topK)
	for _, course := range e.catalog.FallbackCourses(roleSlug, topK) {
		reasonParts := []string{fmt.Sprintf("Popular %s course", subject)}
		if course.NumSubscribers > 10000 {
			reasonParts = append(reasonParts, fmt.Sprintf("with %d enrolled students", course.NumSubscribers))
		}
		if course.NumReviews > 100 {
			reasonParts = append(reasonParts, fmt.Sprintf("%d reviews", course.NumReviews))
		}
		level := strings.ToLower(course.Level)
		if strings.Contains(level, "beginner") {
			reasonParts = append(reasonParts, "ideal for getting started")
		} else if strings.Contains(level, "all levels") {
			reasonParts = append(reasonParts, "suitable for all experience levels")
		}

		matches = append(matches, CourseMatch{
			CourseID:       course.ID,
			Title:          course.Title,
			URL:            course.URL,
			RelevanceScore: fallbackRelevance,
			MatchReason:    strings.Join(reasonParts, ". ") + ".",
			Metadata:       courseMetadata(course),
		})
	}
	return matches
}

func excludedByPayment(course catalogCourse, paymentPref string) bool {
	switch paymentPref {
	case "free":
		return course.IsPaid
	case "paid":
		return !course.IsPaid
	default:
		return false
	}
}

// matchedTerms returns the distinct query terms found in the course text
// plus a hit count where repeated query terms count each occurrence, so a
// term repeated in the query weighs its matches proportionally.
func matchedTerms(text string, queryTerms []string) ([]string, int) {
	matched := make([]string, 0)
	seen := map[string]struct{}{}
	hits := 0
	for _, term := range queryTerms {
		if !wordMatch(term, text) {
			continue
		}
		hits++
		normalized := strings.ToLower(term)
		if _, dup := seen[normalized]; dup {
			continue
		}
		matched = append(matched, term)
		seen[normalized] = struct{}{}
	}
	return matched, hits
}

func firstCommonTag(tags, missedTopics []string) string {
	for _, tag := range tags {
		for _, topic := range missedTopics {
			if strings.EqualFold(tag, topic) {
				return tag
			}
		}
	}
	return ""
}

// levelMatchesDuration maps a stated duration preference onto course
// levels: short content pairs with beginner courses, long with deeper
// intermediate or expert tracks.
func levelMatchesDuration(level, durationPref string) bool {
	level = strings.ToLower(level)
	switch durationPref {
	case "short":
		return strings.Contains(level, "beginner")
	case "medium":
		return strings.Contains(level, "all levels") || strings.Contains(level, "intermediate")
	case "long":
		return strings.Contains(level, "intermediate") || strings.Contains(level, "expert")
	default:
		return false
	}
}

func buildMatchReason(course catalogCourse, matched []string, topicHit string, durationHit bool, paymentPref string) string {
	parts := make([]string, 0, 5)

	if len(matched) > 0 {
		parts = append(parts, "Matches "+strings.Join(headOf(matched, 3), ", "))
	}
	if topicHit != "" {
		parts = append(parts, "covers "+topicHit+", an area to strengthen")
	}
	if course.NumReviews > 1000 {
		parts = append(parts, "highly reviewed")
	} else if course.NumReviews > 100 {
		parts = append(parts, "well reviewed")
	}
	if durationHit {
		parts = append(parts, "fits your preferred course length")
	}
	if paymentPref == "free" && !course.IsPaid {
		parts = append(parts, "free course")
	}

	level := course.Level
	if level == "" {
		level = "All Levels"
	}
	parts = append(parts, fmt.Sprintf("suited for %s learners", strings.ToLower(level)))

	return strings.Join(parts, "; ")
}

func courseMetadata(course catalogCourse) map[string]interface{} {
	return map[string]interface{}{
		"subject":        course.Subject,
		"level":          course.Level,
		"duration_hours": course.ContentDuration,
		"is_paid":        course.IsPaid,
		"price":          course.Price,
		"subscribers":    course.NumSubscribers,
		"tags":           course.tags,
	}
}

// parseTechPreferences splits a free-text preference answer into cleaned
// lowercase keywords. Accepts comma, semicolon, pipe, slash, newline, and
// "and"/"&" separated lists.
func parseTechPreferences(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	normalized := strings.ReplaceAll(text, "\n", ",")
	for _, sep := range []string{";", "|", "/"} {
		normalized = strings.ReplaceAll(normalized, sep, ",")
	}

	var items []string
	switch {
	case strings.Contains(normalized, ","):
		items = strings.Split(normalized, ",")
	case strings.Contains(normalized, " and "):
		items = strings.Split(normalized, " and ")
	case strings.Contains(normalized, " & "):
		items = strings.Split(normalized, " & ")
	default:
		items = []string{normalized}
	}

	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

// ExtractProfileSignals builds the dimension-keyed signal map from profile
// responses. Falls back to the snapshot sequence when no dimension is set.
func ExtractProfileSignals(snapshots []models.QuestionSnapshot, responses []models.Response) map[string]string {
	responseMap := responsesBySnapshot(responses)
	signals := make(map[string]string)

	for i := range snapshots {
		snapshot := &snapshots[i]
		if snapshot.QuestionType != models.QuestionProfile {
			continue
		}
		response, ok := responseMap[snapshot.ID]
		if !ok {
			continue
		}
		value := firstResponseValue(response)
		if value == "" {
			continue
		}
		key := snapshot.Dimension
		if key == "" {
			key = fmt.Sprintf("%d", snapshot.Sequence)
		}
		signals[key] = value
	}
	return signals
}

// ExtractEssayKeywords returns the most frequent non-stopword tokens across
// all essay answers, ties broken alphabetically.
func ExtractEssayKeywords(snapshots []models.QuestionSnapshot, responses []models.Response) []string {
	responseMap := responsesBySnapshot(responses)
	counts := map[string]int{}

	for i := range snapshots {
		snapshot := &snapshots[i]
		if snapshot.QuestionType != models.QuestionEssay {
			continue
		}
		response, ok := responseMap[snapshot.ID]
		if !ok {
			continue
		}
		for _, token := range tokenize(response.StringField("answer")) {
			counts[token]++
		}
	}

	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	return headOf(tokens, essayKeywordLimit)
}

// ExtractMissedTopics lists dimensions of non-profile questions that scored
// below the 60% ratio, skipping preference dimensions.
func ExtractMissedTopics(scores []models.Score, snapshots []models.QuestionSnapshot) []string {
	snapshotMap := make(map[string]*models.QuestionSnapshot, len(snapshots))
	for i := range snapshots {
		snapshotMap[snapshots[i].ID.String()] = &snapshots[i]
	}

	missed := make([]string, 0)
	seen := map[string]struct{}{}
	for i := range scores {
		score := &scores[i]
		if score.MaxScore <= 0 {
			continue
		}
		if score.Score/score.MaxScore >= missedTopicRatio {
			continue
		}
		snapshot, ok := snapshotMap[score.QuestionSnapshotID.String()]
		if !ok || snapshot.QuestionType == models.QuestionProfile {
			continue
		}
		dimension := snapshot.Dimension
		if dimension == "" {
			continue
		}
		if _, excluded := profileDimensions[dimension]; excluded {
			continue
		}
		if _, dup := seen[dimension]; dup {
			continue
		}
		missed = append(missed, dimension)
		seen[dimension] = struct{}{}
	}
	return missed
}

func responsesBySnapshot(responses []models.Response) map[uuid.UUID]*models.Response {
	out := make(map[uuid.UUID]*models.Response, len(responses))
	for i := range responses {
		out[responses[i].QuestionSnapshotID] = &responses[i]
	}
	return out
}

func firstResponseValue(response *models.Response) string {
	for _, key := range []string{"value", "selected_option", "answer", "answer_text"} {
		if v := response.StringField(key); v != "" {
			return v
		}
	}
	return ""
}

func headOf(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func roundTo(value float64, places int) float64 {
	factor := 1.0
	for i := 0; i < places; i++ {
		factor *= 10
	}
	return math.Round(value*factor) / factor
}
