package httpfeed

type gamesResponse struct {
	Data []gameResponse `json:"data"`
	Meta metaResponse   `json:"meta"`
}

type gameResponse struct {
	ID            string       `json:"id"`
	League        string       `json:"league"`
	StartTime     string       `json:"start_time"`
	EstimatedEnd  string       `json:"estimated_end"`
	Status        string       `json:"status"`
	Period        string       `json:"period"`
	Postseason    bool         `json:"postseason"`
	Preseason     bool         `json:"preseason"`
	PlayoffRound  string       `json:"playoff_round"`
	HomeTeam      teamResponse `json:"home_team"`
	VisitorTeam   teamResponse `json:"visitor_team"`
	HomeScore     int          `json:"home_team_score"`
	VisitorScore  int          `json:"visitor_team_score"`
	Networks      []string     `json:"networks"`
}

type teamResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type metaResponse struct {
	TotalPages int `json:"total_pages"`
}
