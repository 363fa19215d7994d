package notes

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	// DefaultMaxResults caps query output when no limit is supplied.
	DefaultMaxResults = 100
	// MinSearchLength is the shortest search term or sub-term that filters.
	MinSearchLength = 2
)

// Query runs the filter pipeline, the sort stage and the result limiter.
func Query(notes []Note, categories []Category, section string, options QueryOptions) QueryResult {
	filtered := Filter(notes, categories, section, options)
	sorted := Sort(filtered, options.SortBy, options.SortOrder)
	results, truncated := Limit(sorted, options.Limit)
	return QueryResult{Results: results, Truncated: truncated}
}

// Filter applies the section filter, text search and advanced filters in order.
func Filter(notes []Note, categories []Category, section string, options QueryOptions) []Note {
	candidates := FilterBySection(notes, section)
	candidates = Search(candidates, categories, options.SearchTerm)
	return ApplyAdvancedFilters(candidates, options)
}

// FilterBySection keeps the notes visible in the named section.
func FilterBySection(notes []Note, section string) []Note {
	switch section {
	case SectionTrash:
		return keep(notes, func(note Note) bool { return note.IsDeleted })
	case SectionFavorites:
		return keep(notes, func(note Note) bool { return note.IsFavorite && !note.IsDeleted })
	case SectionAll, "":
		return keep(notes, func(note Note) bool { return !note.IsDeleted })
	default:
		return keep(notes, func(note Note) bool { return note.Category == section && !note.IsDeleted })
	}
}

// Search keeps notes whose title, stripped content and category name contain
// every sub-term of the search term, case-insensitively. Terms shorter than
// MinSearchLength leave the input unchanged.
func Search(notes []Note, categories []Category, term string) []Note {
	subTerms := searchSubTerms(term)
	if len(subTerms) == 0 {
		return slices.Clone(notes)
	}

	categoryNames := make(map[string]string, len(categories))
	for _, category := range categories {
		categoryNames[category.ID] = category.Name
	}

	return keep(notes, func(note Note) bool {
		haystack := strings.ToLower(strings.Join([]string{
			note.Title,
			StripMarkup(note.Content),
			categoryNames[note.Category],
		}, " "))
		for _, subTerm := range subTerms {
			if !strings.Contains(haystack, subTerm) {
				return false
			}
		}
		return true
	})
}

func searchSubTerms(term string) []string {
	trimmed := strings.TrimSpace(term)
	if utf8.RuneCountInString(trimmed) < MinSearchLength {
		return nil
	}
	var subTerms []string
	for _, field := range strings.Fields(strings.ToLower(trimmed)) {
		if utf8.RuneCountInString(field) >= MinSearchLength {
			subTerms = append(subTerms, field)
		}
	}
	return subTerms
}

// ApplyAdvancedFilters ANDs the date range, category allow-list, pinned-only
// and favorites-only predicates.
func ApplyAdvancedFilters(notes []Note, options QueryOptions) []Note {
	var allowed map[string]struct{}
	if len(options.Categories) > 0 {
		allowed = make(map[string]struct{}, len(options.Categories))
		for _, categoryID := range options.Categories {
			allowed[categoryID] = struct{}{}
		}
	}

	return keep(notes, func(note Note) bool {
		if !options.DateRange.Contains(note.UpdatedAt) {
			return false
		}
		if allowed != nil {
			if _, ok := allowed[note.Category]; !ok {
				return false
			}
		}
		if options.OnlyPinned && !note.IsPinned {
			return false
		}
		if options.OnlyFavorites && !note.IsFavorite {
			return false
		}
		return true
	})
}

// Sort orders pinned notes first, then by sortBy in sortOrder. Pinned-first is
// never inverted and ties keep their input order.
func Sort(notes []Note, sortBy SortKey, sortOrder SortOrder) []Note {
	sorted := slices.Clone(notes)
	compare := secondaryComparator(sortBy)
	descending := sortOrder != SortOrderAsc
	slices.SortStableFunc(sorted, func(left, right Note) int {
		if left.IsPinned != right.IsPinned {
			if left.IsPinned {
				return -1
			}
			return 1
		}
		result := compare(left, right)
		if descending {
			return -result
		}
		return result
	})
	return sorted
}

func secondaryComparator(sortBy SortKey) func(left, right Note) int {
	switch sortBy {
	case SortByTitle:
		collator := collate.New(language.English)
		return func(left, right Note) int {
			return collator.CompareString(left.Title, right.Title)
		}
	case SortByCreatedAt:
		return func(left, right Note) int {
			return left.CreatedAt.Compare(right.CreatedAt)
		}
	default:
		return func(left, right Note) int {
			return left.UpdatedAt.Compare(right.UpdatedAt)
		}
	}
}

// Limit caps notes at maxResults (DefaultMaxResults when not positive) and
// reports whether anything was dropped.
func Limit(notes []Note, maxResults int) ([]Note, bool) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if len(notes) <= maxResults {
		return slices.Clone(notes), false
	}
	return slices.Clone(notes[:maxResults]), true
}

func keep(notes []Note, predicate func(Note) bool) []Note {
	kept := make([]Note, 0, len(notes))
	for _, note := range notes {
		if predicate(note) {
			kept = append(kept, note)
		}
	}
	return kept
}
