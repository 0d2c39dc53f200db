package services

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"microcred/assessment-engine/internal/models"
)

// Role to subject/keyword mappings for retrieval.
var roleKeywords = map[string][]string{
	"backend-engineer": {
		"python", "java", "node", "api", "database", "sql", "backend",
		"server", "microservices", "django", "flask", "spring", "aws",
	},
	"frontend-engineer": {
		"javascript", "react", "vue", "angular", "css", "html", "frontend",
		"web development", "typescript", "ui", "ux",
	},
	"data-scientist": {
		"python", "machine learning", "data science", "statistics", "pandas",
		"numpy", "tensorflow", "deep learning", "ai", "analytics",
	},
	"data-analyst": {
		"sql", "excel", "power bi", "tableau", "data analysis",
		"data analytics", "statistics", "python", "pandas", "visualization",
		"dashboard", "business intelligence",
	},
	"devops-engineer": {
		"docker", "kubernetes", "aws", "azure", "devops", "ci/cd", "jenkins",
		"terraform", "ansible", "linux", "cloud",
	},
	"product-manager": {
		"product management", "agile", "scrum", "business", "strategy",
		"roadmap", "user research", "analytics",
	},
}

var roleFallbackSubjects = map[string]string{
	"backend-engineer":  "Web Development",
	"frontend-engineer": "Web Development",
	"devops-engineer":   "Web Development",
	"data-scientist":    "Business Finance",
	"data-analyst":      "Business Finance",
	"product-manager":   "Business Finance",
}

var topicKeywords = map[string][]string{
	"api":           {"api", "rest", "graphql"},
	"database":      {"database", "sql", "postgres", "mysql"},
	"performance":   {"cache", "caching", "performance"},
	"testing":       {"test", "testing", "pytest", "unit"},
	"backend":       {"backend", "server", "node", "python", "go", "java"},
	"cloud":         {"aws", "gcp", "azure", "cloud", "docker", "kubernetes"},
	"data":          {"data", "analytics", "statistics", "sql"},
	"visualization": {"visualization", "dashboard", "tableau", "powerbi", "power"},
}

var stopwords = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "with": {}, "to": {}, "of": {},
	"in": {}, "a": {}, "on": {}, "an": {}, "your": {}, "how": {},
	"what": {}, "why": {}, "is": {}, "are": {}, "this": {}, "that": {},
}

const embeddingDim = 128

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// catalogCourse is a catalog row plus its precomputed retrieval features.
type catalogCourse struct {
	models.Course
	text   string
	tags   []string
	vector []float64
}

// CourseCatalog holds the static course catalog, loaded once per process
// and read-only afterwards.
type CourseCatalog struct {
	courses []catalogCourse
}

// LoadCatalog reads the course catalog CSV. Column order follows the
// header row: course_id, course_title, url, is_paid, price,
// num_subscribers, num_reviews, level, content_duration, subject.
func LoadCatalog(path string, logger *zap.Logger) (*CourseCatalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("catalog %s has no data rows", path)
	}

	columns := map[string]int{}
	for i, name := range records[0] {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}

	field := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	catalog := &CourseCatalog{courses: make([]catalogCourse, 0, len(records)-1)}
	for _, row := range records[1:] {
		course := models.Course{
			ID:              field(row, "course_id"),
			Title:           field(row, "course_title"),
			URL:             field(row, "url"),
			Subject:         field(row, "subject"),
			Level:           field(row, "level"),
			Price:           parseFloat(field(row, "price")),
			IsPaid:          strings.EqualFold(field(row, "is_paid"), "true"),
			NumSubscribers:  parseInt(field(row, "num_subscribers")),
			NumReviews:      parseInt(field(row, "num_reviews")),
			ContentDuration: parseFloat(field(row, "content_duration")),
		}
		if course.ID == "" || course.Title == "" {
			continue
		}
		catalog.courses = append(catalog.courses, annotateCourse(course))
	}

	logger.Info("course catalog loaded",
		zap.String("path", path),
		zap.Int("total_courses", len(catalog.courses)),
	)
	return catalog, nil
}

// NewCatalogFromCourses builds an in-memory catalog, used by tests and
// seed tooling.
func NewCatalogFromCourses(courses []models.Course) *CourseCatalog {
	catalog := &CourseCatalog{courses: make([]catalogCourse, 0, len(courses))}
	for _, course := range courses {
		catalog.courses = append(catalog.courses, annotateCourse(course))
	}
	return catalog
}

func (c *CourseCatalog) Len() int {
	return len(c.courses)
}

// FallbackCourses returns the most-subscribed courses in the role's mapped
// subject, used when retrieval produces nothing useful.
func (c *CourseCatalog) FallbackCourses(roleSlug string, topK int) []catalogCourse {
	subject := roleFallbackSubjects[roleSlug]
	if subject == "" {
		subject = "Web Development"
	}

	filtered := make([]catalogCourse, 0)
	for _, course := range c.courses {
		if strings.Contains(course.Subject, subject) {
			filtered = append(filtered, course)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].NumSubscribers != filtered[j].NumSubscribers {
			return filtered[i].NumSubscribers > filtered[j].NumSubscribers
		}
		return filtered[i].ID < filtered[j].ID
	})

	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered
}

func annotateCourse(course models.Course) catalogCourse {
	text := strings.ToLower(course.Title + " " + course.Subject + " " + course.Level)
	return catalogCourse{
		Course: course,
		text:   text,
		tags:   extractTopicTags(text),
		vector: hashEmbedding(tokenize(text)),
	}
}

// tokenize lowercases, strips punctuation, and drops stopwords and tokens
// shorter than three characters.
func tokenize(text string) []string {
	clean := nonAlnum.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(clean)
	tokens := make([]string, 0, len(fields))
	for _, token := range fields {
		if len(token) <= 2 {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// hashEmbedding buckets tokens into a fixed-size vector via FNV-1a and
// L2-normalizes it, so cosine similarity reduces to a dot product.
func hashEmbedding(tokens []string) []float64 {
	vec := make([]float64, embeddingDim)
	for _, token := range tokens {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%embeddingDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// wordMatch reports whether term occurs as a whole word in text, so "rest"
// matches "REST API" but not "Pinterest".
func wordMatch(term, text string) bool {
	pattern := `\b` + regexp.QuoteMeta(strings.ToLower(term)) + `\b`
	matched, err := regexp.MatchString(pattern, strings.ToLower(text))
	return err == nil && matched
}

func extractTopicTags(text string) []string {
	tags := make([]string, 0)
	topics := make([]string, 0, len(topicKeywords))
	for topic := range topicKeywords {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		for _, keyword := range topicKeywords[topic] {
			if wordMatch(keyword, text) {
				tags = append(tags, topic)
				break
			}
		}
	}
	return tags
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
