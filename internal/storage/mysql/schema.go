package mysql

var schema = []string{
	`CREATE TABLE IF NOT EXISTS hotels (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		seq         BIGINT       NOT NULL AUTO_INCREMENT UNIQUE,
		name        VARCHAR(255) NOT NULL DEFAULT '',
		location    VARCHAR(255) NOT NULL DEFAULT '',
		total_rooms INT          NOT NULL DEFAULT 0
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id        VARCHAR(64) NOT NULL PRIMARY KEY,
		seq       BIGINT      NOT NULL AUTO_INCREMENT UNIQUE,
		hotel_id  VARCHAR(64) NOT NULL,
		check_in  DATE        NOT NULL,
		check_out DATE        NOT NULL,
		rooms     INT         NOT NULL,
		KEY idx_bookings_hotel_dates (hotel_id, check_in, check_out),
		CONSTRAINT fk_bookings_hotel FOREIGN KEY (hotel_id) REFERENCES hotels (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
