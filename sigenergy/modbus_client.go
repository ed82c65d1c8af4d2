// Package sigenergy reads PV production from a Sigenergy plant controller
// over Modbus TCP.
package sigenergy

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// PlantAddress is the Modbus unit id of the plant controller.
const PlantAddress = 247

// Input register block holding the plant running information.
const (
	plantInfoStart    = 30000
	plantInfoQuantity = 52
)

// RegisterReader is the part of modbus.Client the meter needs.
type RegisterReader interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Client reads plant values from a Sigenergy controller.
type Client struct {
	reader  RegisterReader
	handler *modbus.TCPClientHandler
}

// NewTCPClient connects to the plant controller at address (host:port).
func NewTCPClient(address string, timeout time.Duration) (*Client, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = PlantAddress
	handler.Timeout = timeout
	if handler.Timeout <= 0 {
		handler.Timeout = time.Second
	}

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	return &Client{
		reader:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// NewClient wraps an existing register reader.
func NewClient(reader RegisterReader) *Client {
	return &Client{reader: reader}
}

// Close closes the Modbus connection.
func (c *Client) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}

// PlantInfo is the subset of the plant running information relevant to PV
// yield tracking. Powers are in kW, SOC in percent.
type PlantInfo struct {
	SystemTime            time.Time
	EMSWorkMode           uint16
	GridSensorStatus      uint16
	GridSensorActivePower float64 // >0 import, <0 export
	OnOffGridStatus       uint16
	MaxActivePower        float64
	ESSSOC                float64
	PlantActivePower      float64
	PhotovoltaicPower     float64
	ESSPower              float64 // <0 discharging, >0 charging
	PlantRunningState     uint16
	Alarms                [4]uint16
}

// ReadPlantInfo reads the plant running information block.
func (c *Client) ReadPlantInfo() (*PlantInfo, error) {
	data, err := c.reader.ReadInputRegisters(plantInfoStart, plantInfoQuantity)
	if err != nil {
		return nil, fmt.Errorf("failed to read plant running info: %w", err)
	}
	return decodePlantInfo(data)
}

// ReadPVPower returns the current PV production in kW.
func (c *Client) ReadPVPower() (float64, error) {
	info, err := c.ReadPlantInfo()
	if err != nil {
		return 0, err
	}
	return info.PhotovoltaicPower, nil
}

func decodePlantInfo(data []byte) (*PlantInfo, error) {
	if len(data) < plantInfoQuantity*2 {
		return nil, fmt.Errorf("short plant info response: %d bytes", len(data))
	}

	info := &PlantInfo{
		SystemTime:            time.Unix(int64(binary.BigEndian.Uint32(data[0:4])), 0),
		EMSWorkMode:           u16(data[6:8]),
		GridSensorStatus:      u16(data[8:10]),
		GridSensorActivePower: kilo(s32(data[10:14])),
		OnOffGridStatus:       u16(data[18:20]),
		MaxActivePower:        kilo(int32(binary.BigEndian.Uint32(data[20:24]))),
		ESSSOC:                float64(u16(data[28:30])) / 10.0,
		PlantActivePower:      kilo(s32(data[62:66])),
		PhotovoltaicPower:     kilo(s32(data[70:74])),
		ESSPower:              kilo(s32(data[74:78])),
		PlantRunningState:     u16(data[102:104]),
	}
	for i := range info.Alarms {
		info.Alarms[i] = u16(data[54+2*i : 56+2*i])
	}
	return info, nil
}

func u16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

func s32(data []byte) int32 {
	return int32(binary.BigEndian.Uint32(data))
}

// kilo converts a register value in W to kW.
func kilo(v int32) float64 {
	return float64(v) / 1000.0
}
