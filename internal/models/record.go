package models

// Gearbox classification decided by the normalizer. Manual requires manual
// indicator words without any automatic indicators; co-occurrence of both
// yields Unknown, never a guess.
const (
	GearboxManual    = "Manual"
	GearboxAutomatic = "Automatic"
	GearboxUnknown   = "Unknown"
)

// Fragment is one raw unit of scraped content attributed to a single
// listing, prior to normalization. RawText carries the noisy text blob;
// Fields carries any values the fetcher already extracted structurally
// (DOM selectors), which override heuristic extraction in the normalizer.
type Fragment struct {
	Index   int               `json:"index"`
	RawText string            `json:"raw_text"`
	Fields  map[string]string `json:"fields,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// Structured field keys recognized on a Fragment
const (
	FieldGearbox      = "gearbox"
	FieldDrivetrain   = "lhd_rhd"
	FieldAuctionHouse = "auction_house"
	FieldCountry      = "country_of_sale"
)

// Record is one normalized auction sale entry. String fields left empty
// mean "not extracted" - the normalizer never invents values.
type Record struct {
	Make           string `json:"make" csv:"make"`
	Model          string `json:"model" csv:"model"`
	ProductionYear string `json:"production_year" csv:"production_year"`
	DateOfSale     string `json:"date_of_sale" csv:"date_of_sale"` // DD/MM/YYYY
	SoldPrice      string `json:"sold_price" csv:"sold_price"`     // currency-prefixed, e.g. "£2,500,000"
	Gearbox        string `json:"gearbox" csv:"gearbox"`
	Description    string `json:"description" csv:"description"`
	AuctionHouse   string `json:"auction_house" csv:"auction_house"`
	CountryOfSale  string `json:"country_of_sale" csv:"country_of_sale"`
	Spyder         bool   `json:"spyder" csv:"spyder"`
	LHDRHD         string `json:"lhd_rhd" csv:"lhd_rhd"`
	SourceURL      string `json:"source_url,omitempty" csv:"-"`
}

// CSVHeader is the fixed output column set, a stable superset across
// sources. Absent fields are written empty, never omitted.
var CSVHeader = []string{
	"make", "model", "production_year", "date_of_sale", "sold_price",
	"gearbox", "description", "auction_house", "country_of_sale",
	"spyder", "lhd_rhd",
}

// CSVRow renders the record in CSVHeader column order
func (r *Record) CSVRow() []string {
	spyder := "false"
	if r.Spyder {
		spyder = "true"
	}
	return []string{
		r.Make, r.Model, r.ProductionYear, r.DateOfSale, r.SoldPrice,
		r.Gearbox, r.Description, r.AuctionHouse, r.CountryOfSale,
		spyder, r.LHDRHD,
	}
}

// RecordFromCSVRow rebuilds a record from a CSVHeader-ordered row.
// Short rows fill what they can; extra columns are ignored.
func RecordFromCSVRow(row []string) Record {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	return Record{
		Make:           get(0),
		Model:          get(1),
		ProductionYear: get(2),
		DateOfSale:     get(3),
		SoldPrice:      get(4),
		Gearbox:        get(5),
		Description:    get(6),
		AuctionHouse:   get(7),
		CountryOfSale:  get(8),
		Spyder:         get(9) == "true",
		LHDRHD:         get(10),
	}
}

// ResultSet is the full accepted output of one completed job, persisted
// in the result store and released when the job is deleted.
type ResultSet struct {
	JobID   string     `json:"job_id" badgerhold:"key"`
	Source  SourceType `json:"source"`
	Records []Record   `json:"records"`
}
