// Package notion is a minimal read-only client for the two Notion API
// endpoints the proxy needs: listing the children of a block and
// fetching page metadata. Responses decode into a typed block model so
// unexpected payload shapes fail at decode time instead of deep inside
// rendering.
package notion

import "encoding/json"

// Block kind discriminators as they appear in the API payload.
const (
	TypeParagraph        = "paragraph"
	TypeHeading1         = "heading_1"
	TypeHeading2         = "heading_2"
	TypeHeading3         = "heading_3"
	TypeBulletedListItem = "bulleted_list_item"
	TypeNumberedListItem = "numbered_list_item"
	TypeToDo             = "to_do"
	TypeToggle           = "toggle"
	TypeQuote            = "quote"
	TypeCallout          = "callout"
	TypeCode             = "code"
	TypeImage            = "image"
	TypeVideo            = "video"
	TypeAudio            = "audio"
	TypeFile             = "file"
	TypeEmbed            = "embed"
	TypeBookmark         = "bookmark"
	TypeDivider          = "divider"
	TypeEquation         = "equation"
	TypeTable            = "table"
	TypeTableRow         = "table_row"
	TypeTableOfContents  = "table_of_contents"
	TypeChildPage        = "child_page"
	TypeBreadcrumb       = "breadcrumb"
)

// Block is one node of a page's content tree. Type selects which of the
// kind-specific fields is populated; the others stay nil.
type Block struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	Paragraph        *TextBlock    `json:"paragraph,omitempty"`
	Heading1         *TextBlock    `json:"heading_1,omitempty"`
	Heading2         *TextBlock    `json:"heading_2,omitempty"`
	Heading3         *TextBlock    `json:"heading_3,omitempty"`
	BulletedListItem *TextBlock    `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextBlock    `json:"numbered_list_item,omitempty"`
	ToDo             *ToDoBlock    `json:"to_do,omitempty"`
	Toggle           *TextBlock    `json:"toggle,omitempty"`
	Quote            *TextBlock    `json:"quote,omitempty"`
	Callout          *CalloutBlock `json:"callout,omitempty"`
	Code             *CodeBlock    `json:"code,omitempty"`
	Image            *MediaBlock   `json:"image,omitempty"`
	Video            *MediaBlock   `json:"video,omitempty"`
	Audio            *MediaBlock   `json:"audio,omitempty"`
	File             *FileBlock    `json:"file,omitempty"`
	Embed            *LinkBlock    `json:"embed,omitempty"`
	Bookmark         *LinkBlock    `json:"bookmark,omitempty"`
	Equation         *Equation     `json:"equation,omitempty"`
	Table            *TableBlock   `json:"table,omitempty"`
	TableRow         *TableRow     `json:"table_row,omitempty"`
	TableOfContents  *TOCBlock     `json:"table_of_contents,omitempty"`
	ChildPage        *ChildPage    `json:"child_page,omitempty"`
}

// RichText returns the inline runs for kinds that carry them, nil for
// the rest.
func (b *Block) RichText() []RichText {
	switch b.Type {
	case TypeParagraph:
		return textRuns(b.Paragraph)
	case TypeHeading1:
		return textRuns(b.Heading1)
	case TypeHeading2:
		return textRuns(b.Heading2)
	case TypeHeading3:
		return textRuns(b.Heading3)
	case TypeBulletedListItem:
		return textRuns(b.BulletedListItem)
	case TypeNumberedListItem:
		return textRuns(b.NumberedListItem)
	case TypeToggle:
		return textRuns(b.Toggle)
	case TypeQuote:
		return textRuns(b.Quote)
	case TypeToDo:
		if b.ToDo != nil {
			return b.ToDo.RichText
		}
	case TypeCallout:
		if b.Callout != nil {
			return b.Callout.RichText
		}
	case TypeCode:
		if b.Code != nil {
			return b.Code.RichText
		}
	}
	return nil
}

func textRuns(tb *TextBlock) []RichText {
	if tb == nil {
		return nil
	}
	return tb.RichText
}

type TextBlock struct {
	RichText []RichText `json:"rich_text"`
	Color    string     `json:"color,omitempty"`
}

type ToDoBlock struct {
	RichText []RichText `json:"rich_text"`
	Checked  bool       `json:"checked"`
}

type CalloutBlock struct {
	RichText []RichText `json:"rich_text"`
	Icon     *Icon      `json:"icon,omitempty"`
}

type Icon struct {
	Type     string       `json:"type"`
	Emoji    string       `json:"emoji,omitempty"`
	External *ExternalURL `json:"external,omitempty"`
}

type CodeBlock struct {
	RichText []RichText `json:"rich_text"`
	Caption  []RichText `json:"caption,omitempty"`
	Language string     `json:"language,omitempty"`
}

// MediaBlock covers image, video and audio: the asset lives either on
// Notion's file host or at an external URL.
type MediaBlock struct {
	Type     string       `json:"type,omitempty"`
	File     *HostedFile  `json:"file,omitempty"`
	External *ExternalURL `json:"external,omitempty"`
	Caption  []RichText   `json:"caption,omitempty"`
}

// URL picks the upstream-hosted URL first, then the external one.
func (m *MediaBlock) URL() string {
	if m == nil {
		return ""
	}
	if m.File != nil && m.File.URL != "" {
		return m.File.URL
	}
	if m.External != nil {
		return m.External.URL
	}
	return ""
}

type FileBlock struct {
	Type     string       `json:"type,omitempty"`
	Name     string       `json:"name,omitempty"`
	File     *HostedFile  `json:"file,omitempty"`
	External *ExternalURL `json:"external,omitempty"`
	Caption  []RichText   `json:"caption,omitempty"`
}

func (f *FileBlock) URL() string {
	if f == nil {
		return ""
	}
	if f.File != nil && f.File.URL != "" {
		return f.File.URL
	}
	if f.External != nil {
		return f.External.URL
	}
	return ""
}

type HostedFile struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

type ExternalURL struct {
	URL string `json:"url"`
}

type LinkBlock struct {
	URL     string     `json:"url"`
	Caption []RichText `json:"caption,omitempty"`
}

type Equation struct {
	Expression string `json:"expression"`
}

type TableBlock struct {
	TableWidth      int  `json:"table_width,omitempty"`
	HasColumnHeader bool `json:"has_column_header"`
	HasRowHeader    bool `json:"has_row_header"`
}

type TableRow struct {
	Cells [][]RichText `json:"cells"`
}

type TOCBlock struct {
	Color string `json:"color,omitempty"`
}

type ChildPage struct {
	Title string `json:"title"`
}

// RichText is one styled fragment of inline text.
type RichText struct {
	Type        string       `json:"type"`
	PlainText   string       `json:"plain_text"`
	Href        string       `json:"href,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	Text        *TextValue   `json:"text,omitempty"`
	Mention     *Mention     `json:"mention,omitempty"`
	Equation    *Equation    `json:"equation,omitempty"`
}

type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color,omitempty"`
}

type TextValue struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

type Link struct {
	URL string `json:"url"`
}

type Mention struct {
	Type string       `json:"type"`
	Page *PageMention `json:"page,omitempty"`
}

type PageMention struct {
	ID string `json:"id"`
}

// listEnvelope is what the "list children" endpoint returns, and also
// what the cache stores once every page of results has been pulled.
// AllResultsAggregated marks an aggregated entry (kept for cache-volume
// compatibility); FormatVersion guards against a future shape change
// being misread by older entries.
type listEnvelope struct {
	Object               string  `json:"object,omitempty"`
	Results              []Block `json:"results"`
	HasMore              bool    `json:"has_more"`
	NextCursor           *string `json:"next_cursor"`
	AllResultsAggregated bool    `json:"all_results_aggregated,omitempty"`
	FormatVersion        int     `json:"format_version,omitempty"`
}

const envelopeFormatVersion = 1

func decodeEnvelope(data []byte) (*listEnvelope, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
