package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeGridInvalidPage       = "GRID_INVALID_PAGE"
	CodeGridInvalidPageSize   = "GRID_INVALID_PAGE_SIZE"
	CodeGridInvalidSort       = "GRID_INVALID_SORT"
	CodeGridClosed            = "GRID_CLOSED"
	CodeGridFetchFailed       = "GRID_FETCH_FAILED"
	CodeGridPayloadInvalid    = "GRID_PAYLOAD_INVALID"
	CodeGridRemoteUnavailable = "GRID_REMOTE_UNAVAILABLE"
	CodeGridVisibilityStore   = "GRID_VISIBILITY_STORE"
)

var enUSMessages = map[Code]string{
	CodeGridInvalidPage:       "Page {{.Page}} is not valid.",
	CodeGridInvalidPageSize:   "Page size {{.PageSize}} is not allowed.",
	CodeGridInvalidSort:       "Cannot sort by {{.Sort}}.",
	CodeGridClosed:            "This table is closed.",
	CodeGridFetchFailed:       "Rows could not be loaded. Try again.",
	CodeGridPayloadInvalid:    "The data source returned a page that could not be read.",
	CodeGridRemoteUnavailable: "The data source is unavailable right now.",
	CodeGridVisibilityStore:   "Column settings could not be saved.",
}
