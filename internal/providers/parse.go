package providers

import "strconv"

func parsePriceVolume(priceStr, volumeStr string) (price, volume float64, err error) {
	price, err = strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, 0, err
	}
	if volumeStr == "" {
		return price, 0, nil
	}
	volume, err = strconv.ParseFloat(volumeStr, 64)
	if err != nil {
		return 0, 0, err
	}
	return price, volume, nil
}
