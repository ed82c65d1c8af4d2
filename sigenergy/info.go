package sigenergy

import (
	"fmt"
	"io"
	"time"
)

// ShowPlantInfo connects to the plant controller and prints its PV-related
// running information.
func ShowPlantInfo(w io.Writer, plantModbusAddress string, timeout time.Duration) error {
	if plantModbusAddress == "" {
		return fmt.Errorf("plant_modbus_address is not configured")
	}

	client, err := NewTCPClient(plantModbusAddress, timeout)
	if err != nil {
		return fmt.Errorf("error connecting to plant modbus server at %s: %w", plantModbusAddress, err)
	}
	defer client.Close()

	info, err := client.ReadPlantInfo()
	if err != nil {
		return fmt.Errorf("error reading plant information: %w", err)
	}

	WritePlantInfo(w, info)
	return nil
}

// WritePlantInfo formats info as a table.
func WritePlantInfo(w io.Writer, info *PlantInfo) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "======================== PLANT RUNNING INFORMATION ========================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SYSTEM")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "  System Time:                    %s\n", info.SystemTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  EMS Work Mode:                  %s\n", emsWorkMode(info.EMSWorkMode))
	fmt.Fprintf(w, "  On/Off Grid Status:             %s\n", onOffGridStatus(info.OnOffGridStatus))
	fmt.Fprintf(w, "  Plant Running State:            %d\n", info.PlantRunningState)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "POWER")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "  Photovoltaic Power:             %.3f kW\n", info.PhotovoltaicPower)
	fmt.Fprintf(w, "  Plant Active Power:             %.3f kW\n", info.PlantActivePower)
	fmt.Fprintf(w, "  Max Active Power:               %.3f kW\n", info.MaxActivePower)
	fmt.Fprintf(w, "  Grid Sensor:                    %s\n", gridSensorStatus(info.GridSensorStatus))
	fmt.Fprintf(w, "  Grid Active Power:              %.3f kW\n", info.GridSensorActivePower)
	fmt.Fprintf(w, "  ESS Power:                      %.3f kW %s\n", info.ESSPower, essPowerStatus(info.ESSPower))
	fmt.Fprintf(w, "  ESS SOC:                        %.1f %%\n", info.ESSSOC)
	fmt.Fprintln(w)

	if info.Alarms != [4]uint16{} {
		fmt.Fprintln(w, "ALARMS")
		fmt.Fprintln(w, "--------------------------------------------------")
		for i, alarm := range info.Alarms {
			fmt.Fprintf(w, "  General Alarm %d:                0x%04X\n", i+1, alarm)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "===========================================================================")
}

func emsWorkMode(mode uint16) string {
	switch mode {
	case 0:
		return "Max Self Consumption"
	case 1:
		return "AI Mode"
	case 2:
		return "TOU (Time of Use)"
	case 7:
		return "Remote EMS"
	default:
		return fmt.Sprintf("Unknown (%d)", mode)
	}
}

func gridSensorStatus(status uint16) string {
	switch status {
	case 0:
		return "Not Connected"
	case 1:
		return "Connected"
	default:
		return fmt.Sprintf("Unknown (%d)", status)
	}
}

func onOffGridStatus(status uint16) string {
	switch status {
	case 0:
		return "On Grid"
	case 1:
		return "Off Grid (Auto)"
	case 2:
		return "Off Grid (Manual)"
	default:
		return fmt.Sprintf("Unknown (%d)", status)
	}
}

func essPowerStatus(power float64) string {
	if power < -0.01 {
		return "(Discharging)"
	} else if power > 0.01 {
		return "(Charging)"
	}
	return "(Idle)"
}
