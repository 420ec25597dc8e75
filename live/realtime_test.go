package live

import (
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"
)

func TestParseFeedsBadHeader(t *testing.T) {
	// This one's fine
	incrementality := gtfsproto.FeedHeader_FULL_DATASET
	data, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(1702473763),
		},
	})
	require.NoError(t, err)
	_, err = ParseFeeds([][]byte{data})
	assert.NoError(t, err)

	// Unsupported version
	data, err = proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("3.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(1702473763),
		},
	})
	require.NoError(t, err)
	_, err = ParseFeeds([][]byte{data})
	assert.Error(t, err)

	// Unsupported incrementality
	incrementality = gtfsproto.FeedHeader_DIFFERENTIAL
	data, err = proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(1702473763),
		},
	})
	require.NoError(t, err)
	_, err = ParseFeeds([][]byte{data})
	assert.Error(t, err)

	// Not protobuf at all
	_, err = ParseFeeds([][]byte{[]byte("garbage")})
	assert.Error(t, err)
}

func TestParseFeedsNoUpdates(t *testing.T) {
	data, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsproto.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(1702473763),
		},
	})
	require.NoError(t, err)

	s, err := ParseFeeds([][]byte{data})
	require.NoError(t, err)
	assert.Equal(t, 0, len(s.Trips))
	assert.Equal(t, 0, len(s.CanceledTrips))
	assert.Equal(t, 0, len(s.Vehicles))
	assert.Equal(t, uint64(1702473763), s.Timestamp)
}

func TestParseFeedsStopTimeUpdates(t *testing.T) {
	data, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("entity1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:               proto.String("trip1"),
						RouteId:              proto.String("route1"),
						StartTime:            proto.String("07:45:00"),
						StartDate:            proto.String("20150102"),
						ScheduleRelationship: gtfsproto.TripDescriptor_SCHEDULED.Enum(),
					},
					Vehicle: &gtfsproto.VehicleDescriptor{
						Id:    proto.String("v1"),
						Label: proto.String("Orleans"),
					},
					Timestamp: proto.Uint64(1420167780),
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						// Both arrival and departure set
						{
							StopSequence: proto.Uint32(4),
							StopId:       proto.String("stop1"),
							Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
								Time:  proto.Int64(time.Date(2015, 1, 2, 3, 3, 2, 0, time.UTC).Unix()),
								Delay: proto.Int32(47),
							},
							Departure: &gtfsproto.TripUpdate_StopTimeEvent{
								Time:  proto.Int64(time.Date(2015, 1, 2, 3, 3, 4, 0, time.UTC).Unix()),
								Delay: proto.Int32(48),
							},
						},
						// Only arrival set
						{
							StopSequence: proto.Uint32(5),
							StopId:       proto.String("stop2"),
							Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
								Time: proto.Int64(time.Date(2015, 1, 2, 3, 3, 6, 0, time.UTC).Unix()),
							},
						},
						// Skipped
						{
							StopSequence:         proto.Uint32(6),
							StopId:               proto.String("stop3"),
							ScheduleRelationship: gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
						},
						// No data is dropped
						{
							StopSequence:         proto.Uint32(7),
							StopId:               proto.String("stop4"),
							ScheduleRelationship: gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA.Enum(),
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	s, err := ParseFeeds([][]byte{data})
	require.NoError(t, err)

	require.Equal(t, 1, len(s.Trips))
	assert.Equal(t, 1, s.NumScheduledTrips)

	tu := s.Trips[0]
	assert.Equal(t, "trip1", tu.TripID)
	assert.Equal(t, "route1", tu.RouteID)
	assert.Equal(t, "07:45:00", tu.StartTime)
	assert.Equal(t, "20150102", tu.StartDate)
	assert.Equal(t, "v1", tu.VehicleID)
	assert.Equal(t, "Orleans", tu.VehicleLabel)
	assert.Equal(t, uint64(1420167780), tu.Timestamp)

	assert.Equal(t, []StopTimeUpdate{
		{
			StopID:       "stop1",
			StopSequence: 4,
			Arrival:      time.Date(2015, 1, 2, 3, 3, 2, 0, time.UTC),
			Departure:    time.Date(2015, 1, 2, 3, 3, 4, 0, time.UTC),
		},
		{
			StopID:       "stop2",
			StopSequence: 5,
			Arrival:      time.Date(2015, 1, 2, 3, 3, 6, 0, time.UTC),
		},
		{
			StopID:       "stop3",
			StopSequence: 6,
			Skipped:      true,
		},
	}, tu.Updates)
}

func TestParseFeedsTripRelationships(t *testing.T) {
	trip := func(id string, rel gtfsproto.TripDescriptor_ScheduleRelationship) *gtfsproto.FeedEntity {
		return &gtfsproto.FeedEntity{
			Id: proto.String(id),
			TripUpdate: &gtfsproto.TripUpdate{
				Trip: &gtfsproto.TripDescriptor{
					TripId:               proto.String(id),
					RouteId:              proto.String("r"),
					ScheduleRelationship: rel.Enum(),
				},
			},
		}
	}

	data, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*gtfsproto.FeedEntity{
			trip("a", gtfsproto.TripDescriptor_SCHEDULED),
			trip("b", gtfsproto.TripDescriptor_CANCELED),
			trip("c", gtfsproto.TripDescriptor_ADDED),
			trip("d", gtfsproto.TripDescriptor_UNSCHEDULED),
			trip("e", gtfsproto.TripDescriptor_DUPLICATED),
			trip("f", gtfsproto.TripDescriptor_CANCELED),
		},
	})
	require.NoError(t, err)

	s, err := ParseFeeds([][]byte{data})
	require.NoError(t, err)

	require.Equal(t, 1, len(s.Trips))
	assert.Equal(t, "a", s.Trips[0].TripID)
	assert.Equal(t, map[string]bool{"b": true, "f": true}, s.CanceledTrips)
	assert.Equal(t, 1, s.NumScheduledTrips)
	assert.Equal(t, 2, s.NumCanceledTrips)
	assert.Equal(t, 1, s.NumAddedTrips)
	assert.Equal(t, 1, s.NumUnscheduledTrips)
	assert.Equal(t, 1, s.NumDuplicatedTrips)
}

func TestParseFeedsBadStopTimeUpdate(t *testing.T) {
	data, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("entity1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:               proto.String("trip1"),
						ScheduleRelationship: gtfsproto.TripDescriptor_SCHEDULED.Enum(),
					},
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						// Neither stop_id nor stop_sequence
						{
							Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
								Time: proto.Int64(1420167780),
							},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = ParseFeeds([][]byte{data})
	assert.Error(t, err)
}

func TestParseFeedsVehiclePositions(t *testing.T) {
	tripUpdates, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(100),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("tu1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId: proto.String("trip1"),
					},
				},
			},
		},
	})
	require.NoError(t, err)

	positions, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(200),
		},
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("vp1"),
				Vehicle: &gtfsproto.VehiclePosition{
					Trip:    &gtfsproto.TripDescriptor{TripId: proto.String("trip1")},
					Vehicle: &gtfsproto.VehicleDescriptor{Id: proto.String("bus7")},
					Position: &gtfsproto.Position{
						Latitude:  proto.Float32(45.5),
						Longitude: proto.Float32(-75.5),
						Speed:     proto.Float32(12),
					},
					Timestamp: proto.Uint64(190),
				},
			},
			// No position, dropped
			{
				Id: proto.String("vp2"),
				Vehicle: &gtfsproto.VehiclePosition{
					Trip: &gtfsproto.TripDescriptor{TripId: proto.String("trip2")},
				},
			},
			// No trip, dropped
			{
				Id: proto.String("vp3"),
				Vehicle: &gtfsproto.VehiclePosition{
					Position: &gtfsproto.Position{
						Latitude:  proto.Float32(45.5),
						Longitude: proto.Float32(-75.5),
					},
				},
			},
		},
	})
	require.NoError(t, err)

	s, err := ParseFeeds([][]byte{tripUpdates, positions})
	require.NoError(t, err)

	// Last feed's timestamp wins
	assert.Equal(t, uint64(200), s.Timestamp)
	assert.Equal(t, 1, len(s.Trips))

	require.Equal(t, 1, len(s.Vehicles))
	v := s.Vehicles["trip1"]
	require.NotNil(t, v)
	assert.Equal(t, "bus7", v.VehicleID)
	assert.InDelta(t, 45.5, v.Lat, 0.0001)
	assert.InDelta(t, -75.5, v.Lon, 0.0001)
	assert.Equal(t, 12.0, v.Speed)
	assert.Equal(t, uint64(190), v.Timestamp)
}
