package protocol

type ItemAmount struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

type RoleData struct {
	Name       string   `json:"name"`
	Speed      int      `json:"speed"`
	MaxLoad    int      `json:"load"`
	MaxBattery int      `json:"battery"`
	Tools      []string `json:"tools"`
}

type ItemData struct {
	Name   string       `json:"name"`
	Volume int          `json:"volume"`
	Parts  []ItemAmount `json:"parts"`
	Tools  []string     `json:"tools"`
}

// InitialPercept is sent once per agent when the run starts.
type InitialPercept struct {
	SimID       string     `json:"id"`
	Agent       string     `json:"agent"`
	Team        string     `json:"team"`
	Steps       int        `json:"steps"`
	Map         string     `json:"map"`
	SeedCapital int64      `json:"seedCapital"`
	Role        RoleData   `json:"role"`
	Items       []ItemData `json:"items"`
}

type ActionData struct {
	Type   string   `json:"type"`
	Params []string `json:"params"`
	Result string   `json:"result"`
}

type WaypointData struct {
	Index int     `json:"i"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// EntityData describes an agent. Other agents only carry identity and
// location; the pointer fields are set for the agent itself.
type EntityData struct {
	Name string  `json:"name"`
	Team string  `json:"team"`
	Role string  `json:"role"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`

	Battery  *int           `json:"charge,omitempty"`
	Load     *int           `json:"load,omitempty"`
	Action   *ActionData    `json:"action,omitempty"`
	Facility string         `json:"facility,omitempty"`
	Route    []WaypointData `json:"route,omitempty"`
	Items    []ItemAmount   `json:"items,omitempty"`
}

type FacilityData struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type StockData struct {
	Name   string `json:"name"`
	Price  int    `json:"price"`
	Amount int    `json:"amount"`
}

type ShopData struct {
	FacilityData
	Restock int         `json:"restock"`
	Items   []StockData `json:"items"`
}

type ChargingStationData struct {
	FacilityData
	Rate     int `json:"rate"`
	Blackout int `json:"blackout,omitempty"`
}

type ResourceNodeData struct {
	FacilityData
	Resource string `json:"resource"`
}

type StoredData struct {
	Name      string `json:"name"`
	Stored    int    `json:"stored"`
	Delivered int    `json:"delivered"`
}

// StorageData lists one team's items in Items. Snapshots fill AllItems
// with every team instead.
type StorageData struct {
	FacilityData
	TotalCapacity int                     `json:"totalCapacity"`
	UsedCapacity  int                     `json:"usedCapacity"`
	Items         []StoredData            `json:"items,omitempty"`
	AllItems      map[string][]StoredData `json:"allItems,omitempty"`
}

type BidData struct {
	Team   string `json:"team"`
	Amount int    `json:"amount"`
}

type JobData struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Storage  string       `json:"storage"`
	Reward   int          `json:"reward"`
	Start    int          `json:"start"`
	End      int          `json:"end"`
	Poster   string       `json:"poster,omitempty"`
	Required []ItemAmount `json:"required"`

	AuctionTime int    `json:"auctionTime,omitempty"`
	Fine        int    `json:"fine,omitempty"`
	LowestBid   *int   `json:"lowestBid,omitempty"`
	MissionID   string `json:"missionId,omitempty"`

	// snapshot only
	Status    string                  `json:"status,omitempty"`
	Winner    string                  `json:"winner,omitempty"`
	Team      string                  `json:"team,omitempty"`
	Bid       *BidData                `json:"bid,omitempty"`
	Delivered map[string][]ItemAmount `json:"delivered,omitempty"`
}

// StepPercept is what one agent sees at one step.
type StepPercept struct {
	Step             int                   `json:"step"`
	Self             EntityData            `json:"self"`
	Team             string                `json:"team"`
	Money            int64                 `json:"money"`
	Entities         []EntityData          `json:"entities"`
	Shops            []ShopData            `json:"shops"`
	Workshops        []FacilityData        `json:"workshops"`
	ChargingStations []ChargingStationData `json:"chargingStations"`
	Dumps            []FacilityData        `json:"dumps"`
	ResourceNodes    []ResourceNodeData    `json:"resourceNodes"`
	Storages         []StorageData         `json:"storages"`
	Jobs             []JobData             `json:"jobs"`
}
