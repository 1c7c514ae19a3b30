package tuning

func Defaults() Config {
	return Config{
		SimID:       "",
		Steps:       1000,
		Seed:        17,
		SeedCapital: 50000,
		Map: MapConfig{
			Name:      "paris",
			MinLat:    48.8124,
			MaxLat:    48.9170,
			MinLon:    2.2530,
			MaxLon:    2.4480,
			CellSize:  0.0005,
			Proximity: 0.0002,
		},
		Roles: []RoleConfig{
			{Name: "car", Speed: 3, MaxLoad: 550, MaxBattery: 500},
			{Name: "drone", Speed: 5, MaxLoad: 100, MaxBattery: 250},
			{Name: "motorcycle", Speed: 4, MaxLoad: 300, MaxBattery: 350},
			{Name: "truck", Speed: 2, MaxLoad: 3000, MaxBattery: 1000},
		},
		Teams: []string{"A", "B"},
		Entities: []EntityConfig{
			{Role: "car", Count: 4},
			{Role: "drone", Count: 4},
			{Role: "motorcycle", Count: 4},
			{Role: "truck", Count: 4},
		},
		Generate: Generate{
			Facilities: Facilities{
				QuadSize:            0.04,
				BlackoutProbability: 0.1,
				BlackoutTimeMin:     5,
				BlackoutTimeMax:     10,
				ChargingStations:    ChargingStations{Density: 0.9, RateMin: 50, RateMax: 150},
				Shops: Shops{
					Density: 0.8, MinProd: 3, MaxProd: 10,
					AmountMin: 5, AmountMax: 20,
					PriceAddMin: 100, PriceAddMax: 150,
					RestockMin: 1, RestockMax: 5,
				},
				Dumps:         Density{Density: 0.6},
				Workshops:     Density{Density: 0.6},
				Storage:       Storage{Density: 0.8, CapacityMin: 7000, CapacityMax: 10000},
				ResourceNodes: ResourceNodes{Density: 0.7, GatherFrequencyMin: 4, GatherFrequencyMax: 8},
			},
			Items: Items{
				BaseItemsMin: 5, BaseItemsMax: 7,
				LevelDecreaseMin: 1, LevelDecreaseMax: 2,
				GraphDepthMin: 3, GraphDepthMax: 4,
				ResourcesMin: 1, ResourcesMax: 1,
				MinVol: 10, MaxVol: 100,
				ValueMin: 10, ValueMax: 100,
				MinReq: 1, MaxReq: 3,
				ReqAmountMin: 1, ReqAmountMax: 3,
				ToolsMin: 1, ToolsMax: 1,
				ToolProbability: 0.5,
			},
			Jobs: Jobs{
				Rate:               0.2,
				AuctionProbability: 0.4,
				MissionProbability: 0.1,
				ProductTypesMin:    1,
				ProductTypesMax:    4,
				DifficultyMin:      3,
				DifficultyMax:      12,
				TimeMin:            100,
				TimeMax:            400,
				RewardAddMin:       50,
				RewardAddMax:       100,
				Auctions: Auctions{
					AuctionTimeMin: 2,
					AuctionTimeMax: 10,
					FineSub:        50,
					FineAdd:        50,
					MaxRewardAdd:   50,
				},
				Missions: Missions{MissionDifficultyMax: 2},
			},
		},
	}
}
